package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"rentradar-backend/internal/database"
	"rentradar-backend/internal/messaging"
	"rentradar-backend/pkg/models"
)

// Navigator is the browser surface the collector drives. *Browser satisfies
// it; tests substitute a canned implementation.
type Navigator interface {
	NewTab() (context.Context, context.CancelFunc, error)
	Navigate(tabCtx context.Context, url string, timeout time.Duration) (string, error)
	WaitFor(tabCtx context.Context, selector string, timeout time.Duration) error
	HTML(tabCtx context.Context, timeout time.Duration) (string, error)
	ClickPaginationNumber(tabCtx context.Context, value int, timeout time.Duration) (bool, error)
	ClickNextPage(tabCtx context.Context, timeout time.Duration) (bool, error)
}

// PricePredictor tags freshly saved listings with a model estimate. Optional;
// a nil predictor disables tagging.
type PricePredictor interface {
	Predict(ctx context.Context, listings []models.RawListingInput) (*models.PredictionResponse, error)
}

type CollectorConfig struct {
	BaseURL   string
	StartPage int
	// hard cap on catalog pages walked in one run
	MaxPages    int
	Concurrency int
}

// pause ranges, applied through the Pacer's jitter
const (
	catalogDelayMin = 3 * time.Second
	catalogDelayMax = 5 * time.Second
	offerDelayMin   = 1 * time.Second
	offerDelayMax   = 3 * time.Second
	settleDelayMin  = 500 * time.Millisecond
	settleDelayMax  = 1500 * time.Millisecond
	warmupDelayMin  = 2 * time.Second
	warmupDelayMax  = 4 * time.Second
)

const htmlSnapshotTimeout = 10 * time.Second

// Collector walks the rental catalog, publishes one task per discovered offer
// and runs a pool of workers that fetch, parse and persist each offer.
type Collector struct {
	cfg CollectorConfig

	db        *gorm.DB
	nav       Navigator
	publisher messaging.Publisher
	receiver  messaging.Receiver
	sink      *Sink
	retrier   *Retrier
	pacer     *Pacer
	predictor PricePredictor

	// drain tracking: Run may only end consumption once the walk has
	// finished and every published task reached a final ack or reject
	inFlight  atomic.Int64
	walkDone  atomic.Bool
	drained   chan struct{}
	drainOnce sync.Once
}

func NewCollector(
	cfg CollectorConfig,
	db *gorm.DB,
	nav Navigator,
	publisher messaging.Publisher,
	receiver messaging.Receiver,
	sink *Sink,
	retrier *Retrier,
	pacer *Pacer,
	predictor PricePredictor,
) *Collector {
	if cfg.StartPage < 1 {
		cfg.StartPage = 1
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Collector{
		cfg:       cfg,
		db:        db,
		nav:       nav,
		publisher: publisher,
		receiver:  receiver,
		sink:      sink,
		retrier:   retrier,
		pacer:     pacer,
		predictor: predictor,
		drained:   make(chan struct{}),
	}
}

func (c *Collector) signalDrained() {
	c.drainOnce.Do(func() { close(c.drained) })
}

// taskFinished records a final task outcome. Nacked tasks are requeued for a
// later run and deliberately do not count.
func (c *Collector) taskFinished() {
	if c.inFlight.Add(-1) <= 0 && c.walkDone.Load() {
		c.signalDrained()
	}
}

// Run executes one full collection: it creates the run record, walks the
// catalog publishing offer tasks, waits for the workers to drain the queue
// and finalizes the run status. Run closes both queue endpoints it was
// given before returning.
func (c *Collector) Run(ctx context.Context) error {
	runId := uuid.New()

	run := database.ScrapeRun{
		Id:        runId,
		Status:    database.RunRunning,
		StartPage: c.cfg.StartPage,
		StartTime: time.Now().UTC(),
	}
	if err := c.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}

	slog.Info("collection run started", "run_id", runId, "start_page", c.cfg.StartPage, "workers", c.cfg.Concurrency)

	var workers sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		workers.Add(1)
		go func(worker int) {
			defer workers.Done()
			c.workerLoop(ctx, worker, runId)
		}(i)
	}

	walkErr := c.walkCatalog(ctx, runId)

	// no new tasks after this point; once the published ones are acked or
	// rejected, closing the receiver ends consumption and the workers exit
	c.publisher.Close()
	c.walkDone.Store(true)
	if c.inFlight.Load() <= 0 {
		c.signalDrained()
	}
	select {
	case <-c.drained:
	case <-ctx.Done():
	}
	c.receiver.Close()
	workers.Wait()

	status := database.RunCompleted
	if walkErr != nil {
		status = database.RunFailed
		database.SaveScrapeError(context.Background(), c.db, runId, walkErr.Error())
	}
	if err := database.UpdateRunStatus(context.Background(), c.db, runId, status); err != nil {
		return err
	}

	slog.Info("collection run finished", "run_id", runId, "status", status)
	return walkErr
}

func (c *Collector) walkCatalog(ctx context.Context, runId uuid.UUID) error {
	tabCtx, cancel, err := c.nav.NewTab()
	if err != nil {
		return fmt.Errorf("failed to open catalog tab: %w", err)
	}
	defer cancel()

	opened := c.retrier.Do(ctx, "open_catalog", func(ctx context.Context, timeout time.Duration) error {
		html, err := c.nav.Navigate(tabCtx, c.cfg.BaseURL, timeout)
		if err != nil {
			return err
		}
		return checkCatalogBlocked(html)
	})
	if !opened {
		return fmt.Errorf("could not open catalog %s", c.cfg.BaseURL)
	}

	if err := c.pacer.Sleep(ctx, warmupDelayMin, warmupDelayMax); err != nil {
		return err
	}

	if c.cfg.StartPage > 1 {
		if err := c.fastForward(ctx, tabCtx); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		html, err := c.nav.HTML(tabCtx, htmlSnapshotTimeout)
		if err != nil {
			return fmt.Errorf("failed to read catalog page: %w", err)
		}

		pageNum := CurrentCatalogPage(html)

		urls, err := ExtractOfferURLs(html)
		if err != nil {
			return fmt.Errorf("failed to extract offers from page %d: %w", pageNum, err)
		}
		// empty pages are usually a transient render, keep paginating
		if len(urls) == 0 {
			slog.Warn("no offers found on catalog page", "page", pageNum)
		}

		published := 0
		for _, url := range urls {
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}

			payload := models.OfferTaskPayload{RunId: runId, Url: url}
			if err := c.publisher.PublishOfferTask(ctx, payload); err != nil {
				return fmt.Errorf("failed to publish offer task: %w", err)
			}
			c.inFlight.Add(1)
			published++
		}

		if err := database.IncrementRunCounter(ctx, c.db, runId, "pages_processed"); err != nil {
			slog.Error("failed to bump page counter", "run_id", runId, "error", err)
		}
		slog.Info("catalog page processed", "page", pageNum, "offers", len(urls), "new", published)

		if pageNum >= c.cfg.MaxPages {
			slog.Info("reached page cap, stopping walk", "page", pageNum)
			return nil
		}

		if err := c.pacer.Sleep(ctx, catalogDelayMin, catalogDelayMax); err != nil {
			return err
		}

		advanced := false
		moved := c.retrier.Do(ctx, "next_catalog_page", func(ctx context.Context, timeout time.Duration) error {
			clicked, err := c.nav.ClickNextPage(tabCtx, timeout)
			if err != nil {
				return err
			}
			advanced = clicked
			return nil
		})
		if !moved {
			return fmt.Errorf("could not advance past catalog page %d", pageNum)
		}
		if !advanced {
			slog.Info("no next page control found, walk complete", "page", pageNum)
			return nil
		}
	}
}

// fastForward jumps through the pagination bar until the catalog shows the
// configured start page, clicking the largest visible number that does not
// overshoot and falling back to the next-page arrow.
func (c *Collector) fastForward(ctx context.Context, tabCtx context.Context) error {
	slog.Info("fast-forwarding catalog", "target_page", c.cfg.StartPage)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		html, err := c.nav.HTML(tabCtx, htmlSnapshotTimeout)
		if err != nil {
			return fmt.Errorf("failed to read catalog during fast-forward: %w", err)
		}

		current := CurrentCatalogPage(html)
		if current >= c.cfg.StartPage {
			slog.Info("fast-forward complete", "page", current)
			return nil
		}

		jump, hasJump := BestJumpValue(html, current, c.cfg.StartPage)

		moved := c.retrier.Do(ctx, "fast_forward_jump", func(ctx context.Context, timeout time.Duration) error {
			if hasJump {
				clicked, err := c.nav.ClickPaginationNumber(tabCtx, jump, timeout)
				if err != nil {
					return err
				}
				if clicked {
					return nil
				}
			}
			clicked, err := c.nav.ClickNextPage(tabCtx, timeout)
			if err != nil {
				return err
			}
			if !clicked {
				return fmt.Errorf("no pagination control available on page %d", current)
			}
			return nil
		})
		if !moved {
			return fmt.Errorf("fast-forward stalled on page %d", current)
		}

		if err := c.pacer.Sleep(ctx, warmupDelayMin, warmupDelayMax); err != nil {
			return err
		}
	}
}

func (c *Collector) workerLoop(ctx context.Context, worker int, runId uuid.UUID) {
	for {
		var task messaging.Task
		var open bool
		select {
		case <-ctx.Done():
			return
		case task, open = <-c.receiver.Tasks():
			if !open {
				return
			}
		}

		var payload models.OfferTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("dropping malformed offer task", "worker", worker, "error", err)
			task.Reject()
			c.taskFinished()
			continue
		}

		c.handleOfferTask(ctx, worker, runId, payload, task)
	}
}

func (c *Collector) handleOfferTask(ctx context.Context, worker int, runId uuid.UUID, payload models.OfferTaskPayload, task messaging.Task) {
	if err := c.pacer.Sleep(ctx, offerDelayMin, offerDelayMax); err != nil {
		task.Nack()
		return
	}

	var (
		offer    *Offer
		archived bool
	)

	ok := c.retrier.Do(ctx, "fetch_offer", func(ctx context.Context, timeout time.Duration) error {
		tabCtx, cancel, err := c.nav.NewTab()
		if err != nil {
			return err
		}
		defer cancel()

		if _, err := c.nav.Navigate(tabCtx, payload.Url, timeout); err != nil {
			return err
		}

		// address renders late; tolerate pages that never show it
		if err := c.nav.WaitFor(tabCtx, "[data-name='AddressContainer']", 5*time.Second); err != nil {
			slog.Debug("address container not found", "url", payload.Url)
		}
		if err := c.pacer.Sleep(ctx, settleDelayMin, settleDelayMax); err != nil {
			return err
		}

		html, err := c.nav.HTML(tabCtx, htmlSnapshotTimeout)
		if err != nil {
			return err
		}

		parsed, err := ParseOfferDetail(html, payload.Url)
		if err != nil {
			if err == ErrArchived {
				archived = true
				return nil
			}
			return err
		}

		offer = parsed
		return nil
	})

	if !ok {
		database.SaveScrapeError(ctx, c.db, runId, fmt.Sprintf("failed to fetch %s", payload.Url))
		if err := database.IncrementRunCounter(ctx, c.db, runId, "offers_failed"); err != nil {
			slog.Error("failed to bump failure counter", "run_id", runId, "error", err)
		}
		task.Reject()
		c.taskFinished()
		return
	}

	if archived {
		slog.Warn("offer is archived, skipping", "worker", worker, "url", payload.Url)
		task.Ack()
		c.taskFinished()
		return
	}

	listing, err := c.sink.Save(ctx, runId, offer)
	if err != nil {
		slog.Error("failed to persist offer", "worker", worker, "url", payload.Url, "error", err)
		database.SaveScrapeError(ctx, c.db, runId, err.Error())
		if err := database.IncrementRunCounter(ctx, c.db, runId, "offers_failed"); err != nil {
			slog.Error("failed to bump failure counter", "run_id", runId, "error", err)
		}
		// the failure is recorded; requeueing would count it again
		task.Reject()
		c.taskFinished()
		return
	}

	if err := database.IncrementRunCounter(ctx, c.db, runId, "offers_saved"); err != nil {
		slog.Error("failed to bump saved counter", "run_id", runId, "error", err)
	}
	slog.Info("offer saved", "worker", worker, "url", payload.Url, "price", offer.PricePerMonth)

	c.tagPrediction(ctx, listing, offer)

	task.Ack()
	c.taskFinished()
}

// tagPrediction asks the prediction service for an estimate and stores it on
// the listing. Failures are logged and swallowed; tagging never fails a task.
func (c *Collector) tagPrediction(ctx context.Context, listing *database.Listing, offer *Offer) {
	if c.predictor == nil {
		return
	}

	input := offerToInput(offer)
	resp, err := c.predictor.Predict(ctx, []models.RawListingInput{input})
	if err != nil {
		slog.Warn("prediction tagging failed", "url", offer.Url, "error", err)
		return
	}
	if resp == nil || len(resp.Predictions) == 0 {
		return
	}

	item := resp.Predictions[0]
	if item.PredictedPrice <= 0 {
		return
	}
	if err := database.SetListingPrediction(ctx, c.db, listing.Id, item.PredictedPrice, item.UndervaluedPercent); err != nil {
		slog.Warn("failed to store prediction", "url", offer.Url, "error", err)
	}
}

var (
	areaValueRe  = regexp.MustCompile(`(\d+[\.,]?\d*)`)
	floorSplitRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	minutesRe    = regexp.MustCompile(`(\d+)`)
)

// offerToInput maps a scraped offer onto the prediction request shape. Only
// the facts the detail page reliably exposes are filled; the prediction
// service defaults the rest.
func offerToInput(offer *Offer) models.RawListingInput {
	input := models.RawListingInput{
		Title:         offer.Title,
		PricePerMonth: offer.PricePerMonth,
		Address:       offer.Address,
		Facts:         offer.Features,
	}

	input.Features.MetroCnt = offer.MetroCount
	if m := minutesRe.FindStringSubmatch(offer.MetroNearestTime); m != nil {
		input.Features.MetroNearestTime, _ = strconv.Atoi(m[1])
	}

	if m := areaValueRe.FindStringSubmatch(offer.TotalArea); m != nil {
		input.Features.TotalArea, _ = strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	}
	if m := floorSplitRe.FindStringSubmatch(offer.Floor); m != nil {
		input.Features.FloorNumber, _ = strconv.Atoi(m[1])
		input.Features.TotalFloorsCnt, _ = strconv.Atoi(m[2])
	}

	for key, value := range offer.Facts {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "ремонт":
			input.Features.RepairCat = value
		case "отопление":
			input.Features.HeatingCat = value
		case "парковка":
			input.Features.ParkingCat = value
		case "балкон/лоджия", "балкон":
			input.Features.BalconyLoggiaCnt = value
		case "строительная серия":
			input.Features.ConstructionSeries = value
		case "подъезд", "подъезды":
			input.Features.EntranceInfo = value
		case "тип дома":
			input.Features.HouseTypeCat = value
		case "год постройки":
			input.Features.BuildYear, _ = strconv.Atoi(nonDigitsRe.ReplaceAllString(value, ""))
		case "жкх", "жку", "оплата жкх":
			input.Features.HcsPrice = value
		case "жилая площадь":
			if m := areaValueRe.FindStringSubmatch(value); m != nil {
				input.Features.LivingArea, _ = strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
			}
		case "площадь кухни":
			if m := areaValueRe.FindStringSubmatch(value); m != nil {
				input.Features.KitchenArea, _ = strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
			}
		}
	}

	return input
}

// checkCatalogBlocked inspects a freshly loaded catalog page for the
// interstitials the site serves to suspected bots.
func checkCatalogBlocked(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse catalog html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	lower := strings.ToLower(title)
	for _, keyword := range blockKeywords {
		if strings.Contains(lower, keyword) {
			return &BotBlockError{Title: title}
		}
	}
	return nil
}
