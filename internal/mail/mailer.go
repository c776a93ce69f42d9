// Package mail is the outbound email side channel. Delivery is best-effort:
// callers log failures and never surface them, so a broken relay cannot fail
// a lead mutation.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"leadline.io/internal/crm"
	"leadline.io/internal/obs"
)

// Sender delivers workflow notices to lead owners.
type Sender interface {
	SendAssignmentNotice(ctx context.Context, user crm.User, lead crm.Lead) error
	SendStatusChangeNotice(ctx context.Context, user crm.User, lead crm.Lead, oldStatus, newStatus crm.LeadStatus) error
}

// Config holds SMTP relay settings. An empty Host disables delivery.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// New returns an SMTP sender, or a log-only sender when no relay is
// configured.
func New(cfg Config) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return logOnly{}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &smtpSender{cfg: cfg}
}

type smtpSender struct {
	cfg Config
}

func (s *smtpSender) SendAssignmentNotice(ctx context.Context, user crm.User, lead crm.Lead) error {
	subject := fmt.Sprintf("New Lead Assigned: %s", lead.Name)
	company := lead.Company
	if company == "" {
		company = "N/A"
	}
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\nA new lead has been assigned to you:\r\n\r\n"+
			"Name: %s\r\nCompany: %s\r\nEmail: %s\r\nStatus: %s\r\n\r\n"+
			"Please follow up with this lead as soon as possible.\r\n",
		user.Name, lead.Name, company, lead.Email, lead.Status,
	)
	return s.send(user.Email, subject, body)
}

func (s *smtpSender) SendStatusChangeNotice(ctx context.Context, user crm.User, lead crm.Lead, oldStatus, newStatus crm.LeadStatus) error {
	subject := fmt.Sprintf("Lead Status Updated: %s", lead.Name)
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\nThe status of lead %q has been updated:\r\n\r\n"+
			"From: %s\r\nTo: %s\r\n",
		user.Name, lead.Name, oldStatus, newStatus,
	)
	return s.send(user.Email, subject, body)
}

func (s *smtpSender) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	var a smtp.Auth
	if s.cfg.Username != "" {
		a = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	return smtp.SendMail(addr, a, s.cfg.From, []string{to}, []byte(msg))
}

// logOnly mirrors the unconfigured-relay behavior: the notice is logged and
// dropped.
type logOnly struct{}

func (logOnly) SendAssignmentNotice(ctx context.Context, user crm.User, lead crm.Lead) error {
	obs.LogRequest(map[string]any{
		"level": "info",
		"scope": "mail",
		"msg":   "smtp not configured, skipping assignment notice",
		"to":    user.Email,
		"lead":  lead.ID,
	})
	return nil
}

func (logOnly) SendStatusChangeNotice(ctx context.Context, user crm.User, lead crm.Lead, oldStatus, newStatus crm.LeadStatus) error {
	obs.LogRequest(map[string]any{
		"level": "info",
		"scope": "mail",
		"msg":   "smtp not configured, skipping status notice",
		"to":    user.Email,
		"lead":  lead.ID,
		"from":  string(oldStatus),
		"state": string(newStatus),
	})
	return nil
}
