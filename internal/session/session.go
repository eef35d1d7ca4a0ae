package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/services"

	"github.com/shopspring/decimal"
)

const (
	welcomeBanner = "Welcome to the Auction Server\n" +
		"Please login with 'LOGIN username password' or register with 'REGISTER username email password'\n"
	helpText = "Unknown command. Available commands: REGISTER, LOGIN, LIST, SHOW, HISTORY, SELL, BID, EXIT\n"

	maxLineBytes = 4096
	timeLayout   = "2006-01-02 15:04:05 MST"
)

type session struct {
	conn   net.Conn
	srv    *Server
	idle   time.Duration
	userID int64
	user   string
	done   bool
}

func newSession(conn net.Conn, srv *Server, idle time.Duration) *session {
	return &session{conn: conn, srv: srv, idle: idle}
}

func (s *session) authenticated() bool {
	return s.user != ""
}

func (s *session) run(ctx context.Context) {
	remote := s.conn.RemoteAddr().String()
	s.srv.log.Info("Session opened", "remote_addr", remote)
	defer s.srv.log.Info("Session closed", "remote_addr", remote, "username", s.user)

	if !s.write(welcomeBanner) {
		return
	}

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 512), maxLineBytes)
	for !s.done {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					s.write("Session timed out.\n")
				} else if ctx.Err() == nil {
					s.srv.log.Debug("Session read failed", "remote_addr", remote, "error", err)
				}
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.write(s.dispatch(ctx, line)) {
			return
		}
	}
}

func (s *session) write(msg string) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := s.conn.Write([]byte(msg)); err != nil {
		s.srv.log.Debug("Session write failed", "error", err)
		return false
	}
	return true
}

func (s *session) dispatch(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	cmd, args := strings.ToUpper(fields[0]), fields[1:]

	switch cmd {
	case "LOGIN":
		return s.login(ctx, args)
	case "REGISTER":
		return s.register(ctx, args)
	case "EXIT", "QUIT":
		s.done = true
		return "Goodbye!\n"
	}

	if !s.authenticated() {
		return "Please login first.\n"
	}

	switch cmd {
	case "LIST":
		return s.list(ctx)
	case "SHOW":
		return s.show(ctx, args)
	case "HISTORY":
		return s.history(ctx, args)
	case "SELL":
		return s.sell(ctx, args)
	case "BID":
		return s.bid(ctx, args)
	default:
		return helpText
	}
}

func (s *session) login(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "Usage: LOGIN username password\n"
	}
	_, user, err := s.srv.accounts.Login(ctx, args[0], args[1])
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			s.srv.log.Error("Login failed", "username", args[0], "error", err)
		}
		return "Invalid username or password.\n"
	}
	s.userID, s.user = user.ID, user.Username
	s.srv.log.Info("Session authenticated", "user_id", user.ID, "username", user.Username)
	return "Login successful!\n"
}

func (s *session) register(ctx context.Context, args []string) string {
	if len(args) != 3 {
		return "Usage: REGISTER username email password\n"
	}
	if _, err := s.srv.accounts.Register(ctx, args[0], args[1], args[2]); err != nil {
		if errors.Is(err, domain.ErrInvalidUser) {
			return fmt.Sprintf("Registration failed: %v\n", err)
		}
		if !errors.Is(err, domain.ErrUserExists) {
			s.srv.log.Error("Registration failed", "username", args[0], "error", err)
		}
		return "Username already exists or registration failed.\n"
	}
	return "Registration successful!\n"
}

func (s *session) list(ctx context.Context) string {
	auctions, err := s.srv.listings.ListActive(ctx)
	if err != nil {
		s.srv.log.Error("Failed to list auctions", "error", err)
		return "Failed to list auctions.\n"
	}
	if len(auctions) == 0 {
		return "No active auctions.\n"
	}

	var b strings.Builder
	for _, a := range auctions {
		fmt.Fprintf(&b, "#%d %s | %s | price %s | bids %d | ends %s | %s\n",
			a.ID, a.ItemName, a.CategoryName, domain.FormatMoney(a.CurrentPrice),
			a.BidCount, a.EndTime.UTC().Format(timeLayout), a.Momentum())
	}
	return b.String()
}

func (s *session) show(ctx context.Context, args []string) string {
	id, ok := parseID(args)
	if !ok {
		return "Usage: SHOW auction_id\n"
	}
	a, err := s.srv.listings.GetAuction(ctx, id)
	if err != nil {
		return s.lookupFailure(id, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Auction #%d: %s\n", a.ID, a.ItemName)
	fmt.Fprintf(&b, "Category: %s\n", a.CategoryName)
	fmt.Fprintf(&b, "Starting price: %s\n", domain.FormatMoney(a.StartingPrice))
	fmt.Fprintf(&b, "Current price: %s\n", domain.FormatMoney(a.CurrentPrice))
	if a.WinnerID != nil {
		fmt.Fprintf(&b, "Leading bidder: user %d\n", *a.WinnerID)
	}
	fmt.Fprintf(&b, "Bids: %d\n", a.BidCount)
	fmt.Fprintf(&b, "Status: %s, ends %s\n", a.Status, a.EndTime.UTC().Format(timeLayout))
	if a.ImageURL != "" {
		fmt.Fprintf(&b, "Image: %s\n", a.ImageURL)
	}
	return b.String()
}

func (s *session) history(ctx context.Context, args []string) string {
	id, ok := parseID(args)
	if !ok {
		return "Usage: HISTORY auction_id\n"
	}
	bids, err := s.srv.listings.BidHistory(ctx, id)
	if err != nil {
		return s.lookupFailure(id, err)
	}
	if len(bids) == 0 {
		return "No bids yet.\n"
	}

	var b strings.Builder
	for _, bid := range bids {
		fmt.Fprintf(&b, "%s user %d bid %s\n",
			bid.PlacedAt.UTC().Format(timeLayout), bid.BidderID, domain.FormatMoney(bid.Amount))
	}
	return b.String()
}

// sell creates a listing: SELL price hours item name...
func (s *session) sell(ctx context.Context, args []string) string {
	const usage = "Usage: SELL starting_price duration_hours item name\n"
	if len(args) < 3 {
		return usage
	}
	price, err := decimal.NewFromString(args[0])
	if err != nil {
		return usage
	}
	hours, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return usage
	}
	duration, err := services.ListingDuration(hours)
	if err != nil {
		return fmt.Sprintf("Listing rejected: %v\n", err)
	}

	a, err := s.srv.listings.CreateListing(ctx, services.ListingRequest{
		OwnerID:       s.userID,
		ItemName:      strings.Join(args[2:], " "),
		StartingPrice: price,
		EndTime:       time.Now().Add(duration),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidListing) || errors.Is(err, domain.ErrCategoryUnknown) {
			return fmt.Sprintf("Listing rejected: %v\n", err)
		}
		s.srv.log.Error("Failed to create listing", "user_id", s.userID, "error", err)
		return "Failed to create listing.\n"
	}
	return fmt.Sprintf("Auction #%d created: %s starting at %s, ends %s\n",
		a.ID, a.ItemName, domain.FormatMoney(a.StartingPrice), a.EndTime.UTC().Format(timeLayout))
}

func (s *session) bid(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "Usage: BID auction_id amount\n"
	}
	id, ok := parseID(args[:1])
	if !ok {
		return "Usage: BID auction_id amount\n"
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return "Usage: BID auction_id amount\n"
	}

	res := s.srv.placer.PlaceBid(ctx, id, s.userID, amount)
	switch res.Outcome {
	case domain.OutcomeAccepted:
		return fmt.Sprintf("Bid accepted! Auction #%d is now at %s.\n", id, domain.FormatMoney(res.Bid.Amount))
	case domain.OutcomeNotFound:
		return fmt.Sprintf("Auction #%d not found.\n", id)
	case domain.OutcomeTooLow:
		if !res.MinimumBid.IsZero() {
			return fmt.Sprintf("Bid too low. Minimum bid is %s.\n", domain.FormatMoney(res.MinimumBid))
		}
		return fmt.Sprintf("Bid rejected: %s.\n", res.Reason)
	case domain.OutcomeClosed:
		return fmt.Sprintf("Auction #%d is closed.\n", id)
	case domain.OutcomeBusy:
		return "Auction is busy, please retry.\n"
	default:
		return "Bid could not be processed, please retry.\n"
	}
}

func (s *session) lookupFailure(id int64, err error) string {
	if errors.Is(err, domain.ErrAuctionNotFound) {
		return fmt.Sprintf("Auction #%d not found.\n", id)
	}
	s.srv.log.Error("Auction lookup failed", "auction_id", id, "error", err)
	return "Failed to load auction.\n"
}

func parseID(args []string) (int64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
