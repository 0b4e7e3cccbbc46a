package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// attempt é o resultado de um usuário do teste de carga.
type attempt struct {
	User   int
	Code   int
	Detail string
	Err    error
}

func (a attempt) ok() bool { return a.Err == nil && a.Code == http.StatusOK }

type statusBody struct {
	ResourceID      int64    `json:"resource_id"`
	Name            string   `json:"name"`
	MaxSlots        int      `json:"max_slots"`
	CurrentBookings int      `json:"current_bookings"`
	IsOverbooked    bool     `json:"is_overbooked"`
	Survivors       []string `json:"survivors"`
}

type stormer struct {
	client   *http.Client
	base     string
	resource int64
}

func (s stormer) url(action string) string {
	return fmt.Sprintf("%s/booking/%d/%s", strings.TrimRight(s.base, "/"), s.resource, action)
}

func (s stormer) reset(ctx context.Context, capacity int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s?capacity=%d", s.url("reset"), capacity), nil)
	if err != nil {
		return errors.Wrap(err, "build reset request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "reset")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("reset: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (s stormer) reserve(ctx context.Context, user int) attempt {
	out := attempt{User: user}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url("reserve"), nil)
	if err != nil {
		out.Err = err
		return out
	}
	req.Header.Set("X-Holder", fmt.Sprintf("User-%d", user))

	resp, err := s.client.Do(req)
	if err != nil {
		out.Err = err
		return out
	}
	defer resp.Body.Close()

	out.Code = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		if json.Unmarshal(raw, &body) == nil && body.Detail != "" {
			out.Detail = body.Detail
		} else {
			out.Detail = http.StatusText(resp.StatusCode)
		}
	}
	return out
}

func (s stormer) status(ctx context.Context) (statusBody, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url("status"), nil)
	if err != nil {
		return statusBody{}, errors.Wrap(err, "build status request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return statusBody{}, errors.Wrap(err, "status")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusBody{}, errors.Errorf("status: unexpected status %d", resp.StatusCode)
	}

	var st statusBody
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return statusBody{}, errors.Wrap(err, "decode status")
	}
	return st, nil
}

// storm dispara users reservas. Com parallel <= 0 todas esperam um sinal comum e
// saem juntas; com parallel > 0 no máximo parallel ficam em voo.
func (s stormer) storm(ctx context.Context, users, parallel int) []attempt {
	results := make([]attempt, users)
	start := make(chan struct{})
	var ready sync.WaitGroup

	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
		close(start)
	} else {
		ready.Add(users)
		go func() {
			ready.Wait()
			close(start)
		}()
	}

	for i := 0; i < users; i++ {
		g.Go(func() error {
			if parallel <= 0 {
				ready.Done()
			}
			<-start
			results[i] = s.reserve(gctx, i+1)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type summary struct {
	Success  int
	Failed   int
	Took     time.Duration
	Status   statusBody
	Exceeded bool
}

func (s summary) broken() bool {
	return s.Status.IsOverbooked || s.Exceeded
}
