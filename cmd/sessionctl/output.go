package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

type statusView struct {
	Status       string             `json:"status"`
	User         *goSession.Profile `json:"user,omitempty"`
	LockReason   string             `json:"lock_reason,omitempty"`
	ManualLogout bool               `json:"manual_logout"`
	Online       bool               `json:"online"`
	LastSync     *time.Time         `json:"last_sync,omitempty"`
	Error        string             `json:"error,omitempty"`
}

func newStatusView(s goSession.Snapshot) statusView {
	v := statusView{
		Status:       s.Status.String(),
		User:         s.User,
		ManualLogout: s.ManualLogout,
		Online:       s.IsOnline,
		Error:        s.Error,
	}
	if s.Status == goSession.StatusLocked {
		v.LockReason = s.LockReason.String()
	}
	if !s.LastSync.IsZero() {
		t := s.LastSync
		v.LastSync = &t
	}
	return v
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printStatus() error {
	v := newStatusView(a.engine.Snapshot())
	if a.output == "json" {
		return a.printJSON(v)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "status:\t%s\n", v.Status)
	if v.LockReason != "" {
		fmt.Fprintf(tw, "lock reason:\t%s\n", v.LockReason)
	}
	if v.User != nil {
		fmt.Fprintf(tw, "user:\t%s (%s)\n", v.User.Username, v.User.ID)
		fmt.Fprintf(tw, "permission:\t%s\n", v.User.Permission)
	}
	if v.ManualLogout {
		fmt.Fprintf(tw, "manual logout:\ttrue\n")
	}
	if v.Error != "" {
		fmt.Fprintf(tw, "error:\t%s\n", v.Error)
	}
	return tw.Flush()
}

func (a *app) printProfile(p goSession.Profile) error {
	if a.output == "json" {
		return a.printJSON(p)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", p.ID)
	fmt.Fprintf(tw, "username:\t%s\n", p.Username)
	if p.Email != "" {
		fmt.Fprintf(tw, "email:\t%s\n", p.Email)
	}
	if p.Name != "" {
		fmt.Fprintf(tw, "name:\t%s\n", p.Name)
	}
	fmt.Fprintf(tw, "permission:\t%s\n", p.Permission)
	return tw.Flush()
}
