package webserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/govdecisions/src/channels"
	"github.com/stake-plus/govdecisions/src/decisions"
	"github.com/stake-plus/govdecisions/src/decisions/oracle"
	"github.com/stake-plus/govdecisions/src/shared/gov"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type handlers struct {
	svc      *decisions.Service
	engine   *decisions.Engine
	channels *channels.Store
	clock    oracle.Clock
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, decisions.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, decisions.ErrInvalidProposal),
		errors.Is(err, decisions.ErrInvalidChoice),
		errors.Is(err, decisions.ErrInvalidStatus),
		errors.Is(err, decisions.ErrInvalidVoter),
		errors.Is(err, channels.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, decisions.ErrDecisionNotVotable),
		errors.Is(err, decisions.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, decisions.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"err": err.Error()})
}

func decisionID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad decision id"})
		return 0, false
	}
	return id, true
}

func page(c *gin.Context) (int, int, bool) {
	limit, offset := defaultPageSize, 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"err": "bad limit"})
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"err": "bad offset"})
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func (h handlers) propose(c *gin.Context) {
	var req struct {
		ChannelID string `json:"channelId" binding:"required"`
		Text      string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	d, err := h.svc.Propose(c.Request.Context(), req.Text, c.GetString(ctxUserID), c.GetString(ctxUserName), req.ChannelID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h handlers) get(c *gin.Context) {
	id, ok := decisionID(c)
	if !ok {
		return
	}
	d, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h handlers) list(c *gin.Context) {
	status, ok := gov.ParseStatus(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"err": "unknown status"})
		return
	}
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	out, err := h.engine.List(c.Request.Context(), c.Param("channel"), decisions.ListOptions{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": out, "limit": limit, "offset": offset})
}

func (h handlers) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"err": "q is required"})
		return
	}
	limit, _, ok := page(c)
	if !ok {
		return
	}
	out, err := h.engine.Search(c.Request.Context(), c.Param("channel"), q, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": out})
}

func (h handlers) summary(c *gin.Context) {
	s, err := h.engine.Summary(c.Request.Context(), c.Param("channel"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h handlers) castVote(c *gin.Context) {
	id, ok := decisionID(c)
	if !ok {
		return
	}
	var req struct {
		Choice    string `json:"choice" binding:"required"`
		Anonymous bool   `json:"anonymous"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	choice, valid := gov.ParseChoice(req.Choice)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"err": decisions.ErrInvalidChoice.Error()})
		return
	}

	res, err := h.engine.CastVote(c.Request.Context(), decisions.VoteRequest{
		DecisionID: id,
		VoterID:    c.GetString(ctxUserID),
		VoterName:  c.GetString(ctxUserName),
		Choice:     choice,
		Anonymous:  req.Anonymous,
	})
	if errors.Is(err, decisions.ErrDecisionNotVotable) && res != nil {
		c.JSON(http.StatusConflict, gin.H{"err": err.Error(), "result": res})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h handlers) votes(c *gin.Context) {
	id, ok := decisionID(c)
	if !ok {
		return
	}
	votes, err := h.engine.Votes(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": decisions.RedactVotes(votes, c.GetString(ctxUserID))})
}

func (h handlers) myVote(c *gin.Context) {
	id, ok := decisionID(c)
	if !ok {
		return
	}
	v, err := h.engine.VoteOf(c.Request.Context(), id, c.GetString(ctxUserID))
	if err != nil {
		fail(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "you have not voted on this decision"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h handlers) getConfig(c *gin.Context) {
	cfg, err := h.channels.Settings(c.Request.Context(), c.Param("channel"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h handlers) putConfig(c *gin.Context) {
	var changes channels.Changes
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if changes.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"err": "no settings supplied"})
		return
	}
	cfg, err := h.channels.Update(c.Request.Context(), c.Param("channel"), c.GetString(ctxUserID), c.GetString(ctxUserName), changes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h handlers) configHistory(c *gin.Context) {
	limit, _, ok := page(c)
	if !ok {
		return
	}
	out, err := h.channels.History(c.Request.Context(), c.Param("channel"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": out})
}

func (h handlers) memberLeft(c *gin.Context) {
	report, err := h.svc.MemberLeft(c.Request.Context(), c.Param("channel"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h handlers) sweep(c *gin.Context) {
	report, err := h.engine.SweepExpirations(c.Request.Context(), h.clock.Now())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h handlers) close(c *gin.Context) {
	id, ok := decisionID(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	status, _ := gov.ParseStatus(req.Status)
	res, err := h.engine.Close(c.Request.Context(), id, status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
