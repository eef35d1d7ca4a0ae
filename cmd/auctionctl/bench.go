package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"auction-marketplace/internal/api/dto"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type benchOptions struct {
	BaseURL   string
	AuctionID int64
	Bidders   int
	Rounds    int
	Increment decimal.Decimal
	Password  string
}

type benchReport struct {
	AuctionID  int64
	Outcomes   map[string]int
	FinalPrice string
	Elapsed    time.Duration
}

func (r *benchReport) Total() int {
	n := 0
	for _, c := range r.Outcomes {
		n += c
	}
	return n
}

func (r *benchReport) Print(w io.Writer) {
	names := make([]string, 0, len(r.Outcomes))
	for name := range r.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "auction %d: %d bids in %s, final price %s\n", r.AuctionID, r.Total(), r.Elapsed.Round(time.Millisecond), r.FinalPrice)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %6d\n", name, r.Outcomes[name])
	}
}

type benchClient struct {
	http    *http.Client
	baseURL string
}

func (c *benchClient) do(ctx context.Context, method, path, token string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// session registers name if needed and logs in.
func (c *benchClient) session(ctx context.Context, name, password string) (string, error) {
	status, err := c.do(ctx, http.MethodPost, "/api/v1/users", "", map[string]string{
		"username": name,
		"password": password,
	}, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return "", fmt.Errorf("register %s: status %d", name, status)
	}

	var s dto.SessionResponse
	status, err = c.do(ctx, http.MethodPost, "/api/v1/sessions", "", map[string]string{
		"username": name,
		"password": password,
	}, &s)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("login %s: status %d", name, status)
	}
	return s.Token, nil
}

func (c *benchClient) currentPrice(ctx context.Context, auctionID int64) (decimal.Decimal, error) {
	var a dto.AuctionResponse
	status, err := c.do(ctx, http.MethodGet, "/api/v1/auctions/"+strconv.FormatInt(auctionID, 10), "", nil, &a)
	if err != nil {
		return decimal.Zero, err
	}
	if status != http.StatusOK {
		return decimal.Zero, fmt.Errorf("get auction %d: status %d", auctionID, status)
	}
	return decimal.NewFromString(a.CurrentPrice)
}

// runBench races opts.Bidders users on one auction. Every round each bidder
// reads the current price and bids one increment above it, so most rounds
// produce one accepted bid and a spread of too_low and busy outcomes.
func runBench(ctx context.Context, client *http.Client, opts benchOptions) (*benchReport, error) {
	c := &benchClient{http: client, baseURL: opts.BaseURL}

	tokens := make([]string, opts.Bidders)
	for i := range tokens {
		token, err := c.session(ctx, fmt.Sprintf("bench-%d", i), opts.Password)
		if err != nil {
			return nil, err
		}
		tokens[i] = token
	}

	auctionID := opts.AuctionID
	if auctionID == 0 {
		var a dto.AuctionResponse
		status, err := c.do(ctx, http.MethodPost, "/api/v1/auctions", tokens[0], map[string]interface{}{
			"item_name":      "bench item",
			"starting_price": "1.00",
			"duration_hours": 1,
		}, &a)
		if err != nil {
			return nil, err
		}
		if status != http.StatusCreated {
			return nil, fmt.Errorf("create auction: status %d", status)
		}
		auctionID = a.ID
	}

	report := &benchReport{AuctionID: auctionID, Outcomes: make(map[string]int)}
	var mu sync.Mutex
	path := "/api/v1/auctions/" + strconv.FormatInt(auctionID, 10) + "/bids"

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, token := range tokens {
		token := token
		g.Go(func() error {
			for round := 0; round < opts.Rounds; round++ {
				price, err := c.currentPrice(gctx, auctionID)
				if err != nil {
					return err
				}
				var res dto.BidResultResponse
				if _, err := c.do(gctx, http.MethodPost, path, token,
					map[string]string{"amount": price.Add(opts.Increment).StringFixed(2)}, &res); err != nil {
					return err
				}
				mu.Lock()
				report.Outcomes[res.Outcome]++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.Elapsed = time.Since(start)

	final, err := c.currentPrice(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	report.FinalPrice = final.StringFixed(2)
	return report, nil
}
