// Package api serves the public REST surface used by the verification page.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kkkkikiki/contest/internal/config"
	"github.com/kkkkikiki/contest/internal/model"
	"github.com/kkkkikiki/contest/internal/service"
)

// VerificationProcessor allocates outcomes for verification events
type VerificationProcessor interface {
	ProcessVerification(ctx context.Context, contestID int64, ev model.VerificationEvent, now time.Time) (*model.AwardOutcome, error)
}

// ContestReader reads contest state
type ContestReader interface {
	GetContest(ctx context.Context, id int64) (*service.ContestDetails, error)
}

// Handler holds the dependencies of the public REST handlers
type Handler struct {
	engine   VerificationProcessor
	contests ContestReader
	now      func() time.Time
}

// NewHandler creates a new Handler
func NewHandler(engine VerificationProcessor, contests ContestReader) *Handler {
	return &Handler{engine: engine, contests: contests, now: time.Now}
}

// contestView is the public description of a contest. It never lists codes.
type contestView struct {
	ID          int64        `json:"id"`
	SchoolName  string       `json:"school_name"`
	Name        string       `json:"name"`
	StartAt     time.Time    `json:"start_at"`
	EndAt       time.Time    `json:"end_at"`
	Policy      model.Policy `json:"policy"`
	Prize       string       `json:"prize"`
	PrizeAmount int          `json:"prize_amount"`
	Open        bool         `json:"open"`
	Remaining   int          `json:"remaining"`
}

// NewRouter builds the gin engine serving the public API under /api
func NewRouter(h *Handler, limits config.RateLimitConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Logger(), Recovery())

	public := router.Group("/api", RateLimit(limits.RPS, limits.Burst))
	{
		public.GET("/contests/:id", h.GetContest)
		public.POST("/contests/:id/verifications", h.FinishVerification)
	}
	return router
}

// FinishVerification records the outcome for a student who completed verification
func (h *Handler) FinishVerification(c *gin.Context) {
	contestID, ok := contestIDParam(c)
	if !ok {
		return
	}

	var ev model.VerificationEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		respondWithError(c, http.StatusBadRequest, errCodeBadRequest, "Invalid request body")
		return
	}

	outcome, err := h.engine.ProcessVerification(c.Request.Context(), contestID, ev, h.now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// GetContest returns the public facts of a contest
func (h *Handler) GetContest(c *gin.Context) {
	contestID, ok := contestIDParam(c)
	if !ok {
		return
	}

	details, err := h.contests.GetContest(c.Request.Context(), contestID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	contest := details.Contest
	c.JSON(http.StatusOK, contestView{
		ID:          contest.ID,
		SchoolName:  contest.SchoolName,
		Name:        contest.Name,
		StartAt:     contest.StartAt,
		EndAt:       contest.EndAt,
		Policy:      contest.Policy,
		Prize:       contest.Prize,
		PrizeAmount: contest.PrizeAmount,
		Open:        contest.IsOngoing(h.now()),
		Remaining:   details.Remaining,
	})
}

func contestIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(c, http.StatusBadRequest, errCodeBadRequest, "Invalid contest id")
		return 0, false
	}
	return id, true
}
