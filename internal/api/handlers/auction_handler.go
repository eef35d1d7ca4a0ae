package handlers

import (
	"net/http"
	"strconv"
	"time"

	"auction-marketplace/internal/api/dto"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type AuctionHandler struct {
	listings *services.ListingService
	placer   domain.BidPlacer
	log      logger.Logger
}

type CreateAuctionRequest struct {
	ItemName      string          `json:"item_name"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	EndTime       *time.Time      `json:"end_time"`
	DurationHours float64         `json:"duration_hours"`
	CategoryID    int64           `json:"category_id"`
	ImageURL      string          `json:"image_url"`
}

type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func NewAuctionHandler(listings *services.ListingService, placer domain.BidPlacer, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		listings: listings,
		placer:   placer,
		log:      log,
	}
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind request", "error", err)
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	listing := services.ListingRequest{
		OwnerID:       currentUserID(c),
		ItemName:      req.ItemName,
		StartingPrice: req.StartingPrice,
		CategoryID:    req.CategoryID,
		ImageURL:      req.ImageURL,
	}
	switch {
	case req.EndTime != nil:
		listing.EndTime = *req.EndTime
	case req.DurationHours != 0:
		d, err := services.ListingDuration(req.DurationHours)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		listing.EndTime = time.Now().Add(d)
	}

	auction, err := h.listings.CreateListing(c.Request().Context(), listing)
	if err != nil {
		if errorStatus(err) == http.StatusInternalServerError {
			h.log.Error("Failed to create auction", "error", err)
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewAuctionResponse(auction))
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	list, err := h.listings.ListActive(c.Request().Context())
	if err != nil {
		h.log.Error("Failed to list auctions", "error", err)
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewAuctionList(list))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid auction id")
	}

	auction, err := h.listings.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewAuctionResponse(auction))
}

func (h *AuctionHandler) ListBids(c echo.Context) error {
	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid auction id")
	}

	bids, err := h.listings.BidHistory(c.Request().Context(), auctionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewBidList(bids))
}

// PlaceBid answers with the arbitration outcome. Busy responses carry
// Retry-After so clients back off before resubmitting.
func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid auction id")
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	res := h.placer.PlaceBid(c.Request().Context(), auctionID, currentUserID(c), req.Amount)
	if res.Outcome == domain.OutcomeBusy {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(OutcomeStatus(res.Outcome), dto.NewBidResultResponse(auctionID, res))
}

func (h *AuctionHandler) ListCategories(c echo.Context) error {
	cats, err := h.listings.Categories(c.Request().Context())
	if err != nil {
		h.log.Error("Failed to list categories", "error", err)
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewCategoryList(cats))
}
