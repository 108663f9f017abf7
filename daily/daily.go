// Copyright (c) 2024 Neomantra Corp
//
// Package daily runs the two cron-scheduled jobs that operate on
// business-day boundaries rather than the watcher's continuous poll: the
// previous-business-day bhavcopy fetch and the today-or-yesterday
// securities master scan, scheduled with github.com/robfig/cron/v3 in
// the exchange's local time zone.

package nsefeed_daily

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
	bus "github.com/nse-cmfeed/nse-cmfeed/bus"
	ledger "github.com/nse-cmfeed/nse-cmfeed/ledger"
	store "github.com/nse-cmfeed/nse-cmfeed/store"
	transport "github.com/nse-cmfeed/nse-cmfeed/transport"
)

// securitiesFilename is the fixed basename of the securities master file;
// matching against it is case-insensitive.
const securitiesFilename = "Securities.dat"

// Config wires a Jobs instance's collaborators, schedule, and timezone.
type Config struct {
	Transport transport.Client
	Store     *store.Store
	Ledger    *ledger.Ledger
	Bus       *bus.Bus
	Clock     nsefeed.Clock
	Logger    *slog.Logger

	RemoteRoot string
	Location   *time.Location // default Asia/Kolkata
	Holiday    nsefeed.HolidayPredicate

	// BhavcopySchedule and SecuritiesSchedule are standard 5-field cron
	// expressions, interpreted in Location. Defaults run both once a day,
	// comfortably after the exchange's own end-of-day file generation.
	BhavcopySchedule   string
	SecuritiesSchedule string
}

const (
	defaultBhavcopySchedule   = "30 19 * * *" // 19:30 IST
	defaultSecuritiesSchedule = "0 20 * * *"  // 20:00 IST
)

// Jobs owns a cron.Cron scheduler running the bhavcopy and securities
// jobs against the wired collaborators.
type Jobs struct {
	cfg Config
	c   *cron.Cron
}

// New validates cfg, applies defaults, and builds a ready-to-start Jobs.
func New(cfg Config) (*Jobs, error) {
	if cfg.Transport == nil || cfg.Store == nil || cfg.Ledger == nil {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "daily.New", fmt.Errorf("transport, store, and ledger are all required"))
	}
	if cfg.RemoteRoot == "" {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "daily.New", fmt.Errorf("RemoteRoot is required"))
	}
	if cfg.Clock == nil {
		cfg.Clock = nsefeed.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation("Asia/Kolkata")
		if err != nil {
			loc = time.UTC
		}
		cfg.Location = loc
	}
	if cfg.BhavcopySchedule == "" {
		cfg.BhavcopySchedule = defaultBhavcopySchedule
	}
	if cfg.SecuritiesSchedule == "" {
		cfg.SecuritiesSchedule = defaultSecuritiesSchedule
	}

	j := &Jobs{cfg: cfg, c: cron.New(cron.WithLocation(cfg.Location))}
	if _, err := j.c.AddFunc(cfg.BhavcopySchedule, func() { j.RunBhavcopy(context.Background()) }); err != nil {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "daily.New", err)
	}
	if _, err := j.c.AddFunc(cfg.SecuritiesSchedule, func() { j.RunSecurities(context.Background()) }); err != nil {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "daily.New", err)
	}
	return j, nil
}

// Start begins the scheduler in the background. Stop must be called to
// release its goroutine.
func (j *Jobs) Start() { j.c.Start() }

// Stop halts the scheduler, waiting for any in-progress job to finish.
func (j *Jobs) Stop() { <-j.c.Stop().Done() }

// RunBhavcopy fetches, parses, and persists the previous business day's
// bhavcopy file: roll back over weekends (and any configured holiday) to
// find the business date, then construct
// BHAVCOPY/<MonthDDYYYY>/CMBhavcopy_<DDMMYYYY>.txt.
func (j *Jobs) RunBhavcopy(ctx context.Context) {
	logger := j.cfg.Logger.With("job", "bhavcopy")
	bizDate := nsefeed.PreviousBusinessDay(j.cfg.Clock.Now(), j.cfg.Holiday)
	folder := nsefeed.MonthDDYYYY(bizDate)
	filename := fmt.Sprintf("CMBhavcopy_%s.txt", nsefeed.DDMMYYYY(bizDate))
	remotePath := fmt.Sprintf("%s/BHAVCOPY/%s/%s", j.cfg.RemoteRoot, folder, filename)

	logger = logger.With("remote_path", remotePath)
	seen, err := j.cfg.Ledger.Seen(ctx, remotePath)
	if err != nil {
		logger.Error("ledger lookup failed", "error", err)
		return
	}
	if seen {
		logger.Info("bhavcopy already processed, skipping")
		return
	}

	data, err := j.cfg.Transport.Fetch(ctx, remotePath)
	if err != nil {
		logger.Warn("fetch failed, will retry next schedule", "error", err)
		return
	}

	bhav, err := nsefeed.DecodeBhavcopy(string(data), filename)
	if err != nil {
		logger.Error("decode failed, will retry next schedule", "error", err)
		return
	}

	batch := &nsefeed.Batch{Kind: nsefeed.Kind_Bhavcopy, SourceFile: remotePath, BusinessDate: bhav.BusinessDate, BhavcopyRows: bhav.Rows}
	if err := nsefeed.Walk(batch, &traceVisitor{logger: logger}); err != nil {
		logger.Error("trace walk failed", "error", err)
	}

	if err := j.cfg.Store.InsertBhavcopyConditional(ctx, bhav.Rows, bhav.BusinessDate); err != nil {
		logger.Error("persist failed, will retry next schedule", "error", err)
		return
	}

	if j.cfg.Bus != nil {
		j.cfg.Bus.Publish(nsefeed.Batch{
			Kind:         nsefeed.Kind_Bhavcopy,
			SourceFile:   remotePath,
			FetchedAt:    j.cfg.Clock.Now(),
			BusinessDate: bhav.BusinessDate,
			BhavcopyRows: bhav.Rows,
		})
	}

	if err := j.cfg.Ledger.Mark(ctx, remotePath, j.cfg.Clock.Now().Unix()); err != nil {
		logger.Error("failed to mark bhavcopy processed", "error", err)
		return
	}
	logger.Info("bhavcopy processed", "rows", len(bhav.Rows))
}

// RunSecurities scans both today's and yesterday's SECURITY directories
// for Securities.dat, since the exchange sometimes publishes the file
// before midnight UTC relative to the business date it
// describes. Every resulting path is ledger-gated like the watcher's
// files, so a file seen under both dates is only ever upserted once.
func (j *Jobs) RunSecurities(ctx context.Context) {
	logger := j.cfg.Logger.With("job", "securities")
	now := j.cfg.Clock.Now()
	candidates := []time.Time{now, now.AddDate(0, 0, -1)}

	total := 0
	for _, day := range candidates {
		dir := fmt.Sprintf("%s/SECURITY/%s", j.cfg.RemoteRoot, nsefeed.MonthDDYYYY(day))
		dirLogger := logger.With("dir", dir)

		files, err := j.cfg.Transport.List(ctx, dir)
		if err != nil {
			dirLogger.Warn("could not list securities directory", "error", err)
			continue
		}

		for _, remotePath := range files {
			if !isSecuritiesFile(remotePath) {
				continue
			}
			if j.processSecuritiesFile(ctx, dirLogger, remotePath, day) {
				total++
			}
		}
	}
	logger.Info("securities scan complete", "files_processed", total)
}

func (j *Jobs) processSecuritiesFile(ctx context.Context, logger *slog.Logger, remotePath string, asOf time.Time) bool {
	logger = logger.With("remote_path", remotePath)

	seen, err := j.cfg.Ledger.Seen(ctx, remotePath)
	if err != nil {
		logger.Error("ledger lookup failed", "error", err)
		return false
	}
	if seen {
		return false
	}

	data, err := j.cfg.Transport.Fetch(ctx, remotePath)
	if err != nil {
		logger.Warn("fetch failed, will retry next schedule", "error", err)
		return false
	}

	records, err := nsefeed.DecodeSecurityMaster(data, j.cfg.Logger)
	if err != nil {
		logger.Error("decode failed, will retry next schedule", "error", err)
		return false
	}

	batch := &nsefeed.Batch{Kind: nsefeed.Kind_Securities, SourceFile: remotePath, BusinessDate: asOf, SecurityMasters: records}
	if err := nsefeed.Walk(batch, &traceVisitor{logger: logger}); err != nil {
		logger.Error("trace walk failed", "error", err)
	}

	if err := j.cfg.Store.UpsertSecurities(ctx, records, j.cfg.Clock.Now()); err != nil {
		logger.Error("persist failed, will retry next schedule", "error", err)
		return false
	}

	if j.cfg.Bus != nil {
		j.cfg.Bus.Publish(nsefeed.Batch{
			Kind:            nsefeed.Kind_Securities,
			SourceFile:      remotePath,
			FetchedAt:       j.cfg.Clock.Now(),
			BusinessDate:    asOf,
			SecurityMasters: records,
		})
	}

	if err := j.cfg.Ledger.Mark(ctx, remotePath, j.cfg.Clock.Now().Unix()); err != nil {
		logger.Error("failed to mark securities file processed", "error", err)
		return false
	}
	logger.Info("securities file processed", "records", len(records))
	return true
}

// traceVisitor walks a just-decoded daily-job Batch and emits one Debug
// log line per record, the same per-record trace the watcher package
// wires in for its own snapshot kinds.
type traceVisitor struct {
	nsefeed.NullVisitor
	logger *slog.Logger
}

func (v *traceVisitor) OnSecurityMaster(r *nsefeed.SecurityMaster) error {
	v.logger.Debug("security master", "token_number", r.TokenNumber, "symbol", r.Symbol)
	return nil
}

func (v *traceVisitor) OnBhavcopyRow(r *nsefeed.BhavcopyRow) error {
	v.logger.Debug("bhavcopy row", "symbol", r.Symbol, "series", r.Series)
	return nil
}

func isSecuritiesFile(remotePath string) bool {
	base := remotePath
	for i := len(remotePath) - 1; i >= 0; i-- {
		if remotePath[i] == '/' {
			base = remotePath[i+1:]
			break
		}
	}
	return strings.EqualFold(base, securitiesFilename)
}
