package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/config"
	"github.com/sells-group/listing-trust/internal/extract"
	"github.com/sells-group/listing-trust/internal/governor"
	"github.com/sells-group/listing-trust/internal/pipeline"
	"github.com/sells-group/listing-trust/internal/reasoning"
	"github.com/sells-group/listing-trust/internal/review"
	"github.com/sells-group/listing-trust/internal/scorer"
	"github.com/sells-group/listing-trust/internal/store"
	"github.com/sells-group/listing-trust/internal/translate"
)

// envOptions selects the optional parts of an appEnv.
type envOptions struct {
	Store    bool
	Governor bool
}

// appEnv holds everything the commands share. Store and Governor are nil
// unless requested.
type appEnv struct {
	Store      store.Store
	Reasoner   *reasoning.Guard
	Governor   *governor.Governor
	Pipeline   *pipeline.Pipeline
	Extractor  *extract.Extractor
	Translator *translate.Translator

	closers []func()
}

// Close drains pending audit writes and releases resources in reverse
// order of acquisition.
func (e *appEnv) Close() {
	if e.Pipeline != nil {
		e.Pipeline.Wait()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initEnv builds the scoring stack from c. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, opts envOptions) (*appEnv, error) {
	env := &appEnv{}

	guard, err := reasoning.NewGuarded(ctx, c)
	if err != nil {
		return nil, eris.Wrap(err, "init reasoning")
	}
	env.Reasoner = guard

	heuristic, err := scorer.LoadConfigFile(c.Scorer.ConfigFile)
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}
	sc, err := scorer.New(heuristic, scorer.WithSigningKey(c.Scorer.SigningKey))
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}

	extractOpts := []extract.Option{extract.WithBaseCurrency(c.Extract.BaseCurrency)}
	if c.Extract.AIFallback {
		extractOpts = append(extractOpts, extract.WithReasoner(guard))
	}
	env.Extractor = extract.New(extractOpts...)
	env.Translator = translate.New(guard)

	pipeOpts := []pipeline.Option{
		pipeline.WithAuditTimeout(time.Duration(c.Store.AuditTimeoutSecs) * time.Second),
	}

	if opts.Store {
		st, err := store.Open(ctx, c.Store)
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		env.Store = st
		env.closers = append(env.closers, func() { _ = st.Close() })

		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		pipeOpts = append(pipeOpts, pipeline.WithListings(st), pipeline.WithAudits(st))
	}

	if opts.Governor {
		g, err := initGovernor(ctx, c, env)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Governor = g
		pipeOpts = append(pipeOpts, pipeline.WithGovernor(g))
	}

	p, err := pipeline.New(sc, review.New(guard), pipeOpts...)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init pipeline")
	}
	env.Pipeline = p

	zap.L().Info("scoring stack ready",
		zap.String("reasoning", guard.Name()),
		zap.Bool("reasoning_configured", guard.Configured()),
		zap.Bool("store", env.Store != nil),
		zap.Bool("governor", env.Governor != nil),
	)
	return env, nil
}

func initGovernor(ctx context.Context, c *config.Config, env *appEnv) (*governor.Governor, error) {
	gcfg := governor.ConfigFrom(c.Governor)

	switch c.Governor.Backend {
	case "redis":
		rs, err := governor.NewRedisStore(c.Redis)
		if err != nil {
			return nil, eris.Wrap(err, "init redis bucket store")
		}
		env.closers = append(env.closers, rs.Close)
		return governor.New(rs, gcfg)
	default:
		ms := governor.NewMemoryStore()
		sweepCtx, cancel := context.WithCancel(ctx)
		env.closers = append(env.closers, cancel)
		go ms.RunSweeper(sweepCtx, gcfg.Window)
		return governor.New(ms, gcfg)
	}
}
