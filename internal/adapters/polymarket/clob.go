package polymarket

// clob.go: order books and quotes from the CLOB.
//
// FetchOrderBooks fires one goroutine per batch of token ids. The books
// limiter inside doWithRetry paces them, so no extra semaphore is needed.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

const (
	booksPath = "/books"
	batchSize = 20 // max token ids per POST /books
)

// FetchQuotes prices every market from its YES and NO books. Markets with no
// usable YES ask are left out of the result.
func (c *Client) FetchQuotes(ctx context.Context, markets []domain.Market) (map[string]domain.MarketQuote, error) {
	tokenIDs := make([]string, 0, 2*len(markets))
	for _, m := range markets {
		for _, t := range m.Tokens {
			if t.TokenID != "" {
				tokenIDs = append(tokenIDs, t.TokenID)
			}
		}
	}

	books, err := c.FetchOrderBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("polymarket.FetchQuotes: %w", err)
	}

	at := c.now()
	quotes := make(map[string]domain.MarketQuote, len(markets))
	for _, m := range markets {
		if q, ok := quoteFromBooks(m, books, at); ok {
			quotes[m.ConditionID] = q
		}
	}
	slog.Debug("quotes built", "markets", len(markets), "quoted", len(quotes))
	return quotes, nil
}

// FetchMarks prices single tokens, used for held positions whose market is
// no longer in the scanned universe.
func (c *Client) FetchMarks(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	if len(tokenIDs) == 0 {
		return map[string]float64{}, nil
	}
	books, err := c.FetchOrderBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("polymarket.FetchMarks: %w", err)
	}
	marks := make(map[string]float64, len(tokenIDs))
	for _, id := range tokenIDs {
		if m, ok := markFromBook(books[id]); ok {
			marks[id] = m
		}
	}
	return marks, nil
}

// FetchOrderBooks returns tokenID -> book through the batch endpoint.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := c.fetchBooksBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var failed int
	var firstErr error
	for r := range resultCh {
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}

	// A partial answer still prices most markets; only a total failure is
	// an error.
	if failed == len(batches) {
		return nil, fmt.Errorf("polymarket.FetchOrderBooks: %w", firstErr)
	}
	if failed > 0 {
		slog.Warn("some book batches failed", "failed", failed, "batches", len(batches), "err", firstErr)
	}
	return result, nil
}

func splitBatches(ids []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		batches = append(batches, ids[i:end])
	}
	return batches
}

func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.cfg.CLOBBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}
	return mapOrderBooks(resp), nil
}
