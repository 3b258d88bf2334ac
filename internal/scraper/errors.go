package scraper

import (
	"errors"
	"fmt"
)

// ErrArchived marks an offer that has been taken off publication; it is
// skipped without retries.
var ErrArchived = errors.New("offer archived or inactive")

// ErrPriceMissing marks a detail page without a price block. The page likely
// did not finish loading, so the fetch is retried.
var ErrPriceMissing = errors.New("price not found on page")

// BotBlockError is raised when a page looks like an anti-bot interstitial
// (captcha, VPN warning, access restriction). It drives the long backoff path.
type BotBlockError struct {
	Title string
}

func (e *BotBlockError) Error() string {
	return fmt.Sprintf("anti-bot block detected: %s", e.Title)
}

func IsBotBlock(err error) bool {
	var blockErr *BotBlockError
	return errors.As(err, &blockErr)
}
