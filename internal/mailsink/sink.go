// Package mailsink is a development stand-in for the email API. It accepts
// every well-formed message, logs it and keeps the most recent ones in
// memory.
package mailsink

import (
	"net/http"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/gin-gonic/gin"
)

const tokenHeader = "X-Postmark-Server-Token"

// Email mirrors the JSON body posted by the mailer client.
type Email struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
	HtmlBody string `json:"HtmlBody"`
}

// Sink is a fake mail provider that keeps delivered messages in memory.
type Sink struct {
	mu     sync.Mutex
	inbox  []Email
	keep   int
	logger logging.Logger
}

// New returns a Sink that retains the most recent keep messages.
func New(keep int, l logging.Logger) *Sink {
	return &Sink{keep: keep, logger: l.With("module", "mailsink")}
}

// Inbox returns a copy of the retained messages, oldest first.
func (s *Sink) Inbox() []Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Email(nil), s.inbox...)
}

func (s *Sink) receive(c *gin.Context) {
	if c.GetHeader(tokenHeader) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing server token"})
		return
	}

	var e Email
	if err := c.ShouldBindJSON(&e); err != nil || e.To == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid email"})
		return
	}

	s.mu.Lock()
	s.inbox = append(s.inbox, e)
	if len(s.inbox) > s.keep {
		s.inbox = s.inbox[len(s.inbox)-s.keep:]
	}
	s.mu.Unlock()

	s.logger.Info(c.Request.Context(), "email received", "to", e.To, "subject", e.Subject, "body", e.TextBody)
	c.Status(http.StatusOK)
}

func (s *Sink) list(c *gin.Context) {
	c.JSON(http.StatusOK, s.Inbox())
}

// Router serves POST /email and GET /email.
func (s *Sink) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/email", s.receive)
	r.GET("/email", s.list)
	return r
}
