// Package widen ties the pipeline together: discover sources, parse rule
// files, resolve them into one set, build the interface map and rewrite the
// archive.
package widen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"class-widener/internal/archive"
	"class-widener/internal/config"
	"class-widener/internal/manifest"
	"class-widener/internal/resolve"
	"class-widener/internal/rules"
	"class-widener/internal/textutil"
	"class-widener/internal/validate"
	"class-widener/internal/walkwalk"
)

// Inputs is everything read and derived from the configured sources.
type Inputs struct {
	Sources    *manifest.Sources
	Rules      []rules.Rule
	Set        resolve.Set
	Interfaces manifest.InterfaceMap
	// Lint holds non-fatal findings; nil when clean. In strict mode they are
	// returned as an error instead.
	Lint error
}

// Load discovers manifests and rule files, parses every rule file and
// resolves the result. The first parse error aborts the load.
func Load(cfg *config.Config, log *zap.Logger) (*Inputs, error) {
	if log == nil {
		log = zap.NewNop()
	}
	paths := make([]string, 0, len(cfg.Manifests)+len(cfg.Rules))
	paths = append(paths, cfg.Manifests...)
	paths = append(paths, cfg.Rules...)
	src, err := manifest.Load(paths, manifest.Options{
		Name:           cfg.ManifestName,
		Exclude:        cfg.Exclude,
		FollowSymlinks: cfg.FollowSymlinks,
	})
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	for _, s := range src.Skipped {
		fields := []zap.Field{zap.String("path", s.AbsPath), zap.String("reason", s.Reason)}
		if s.Reason == walkwalk.ReasonExcluded {
			log.Debug("source skipped", fields...)
			continue
		}
		log.Warn("source skipped", fields...)
	}
	log.Info("sources discovered",
		zap.Int("manifests", len(src.Manifests)),
		zap.Int("rule_files", len(src.RuleFiles)),
	)

	in := &Inputs{Sources: src}
	perSource := make([][]rules.Rule, 0, len(src.RuleFiles))
	for _, rf := range src.RuleFiles {
		rs, err := rules.Parse(bytes.NewReader(textutil.StripBOM(rf.Data)), rf.Label)
		if err != nil {
			return nil, err
		}
		log.Debug("rule file parsed", zap.String("source", rf.Label), zap.Int("rules", len(rs)))
		perSource = append(perSource, rs)
		in.Rules = append(in.Rules, rs...)
	}
	in.Set = resolve.FromSources(perSource...)
	in.Interfaces = manifest.BuildInterfaceMap(src.Manifests)
	log.Info("rules resolved",
		zap.Int("rules", len(in.Rules)),
		zap.Int("classes", len(in.Set)),
		zap.Int("injection_targets", len(in.Interfaces)),
	)

	in.Lint = joinLint(validate.Set(in.Set), validate.Interfaces(in.Interfaces))
	if in.Lint != nil {
		if cfg.Strict {
			return nil, fmt.Errorf("lint: %w", in.Lint)
		}
		for _, line := range strings.Split(in.Lint.Error(), "\n") {
			log.Warn("suspicious rule", zap.String("problem", line))
		}
	}
	return in, nil
}

// Apply loads the inputs and rewrites cfg.Input into cfg.Output.
func Apply(ctx context.Context, cfg *config.Config, log *zap.Logger) (archive.Stats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return archive.Stats{}, fmt.Errorf("config: %w", err)
	}
	in, err := Load(cfg, log)
	if err != nil {
		return archive.Stats{}, err
	}
	st, err := archive.Rewrite(ctx, cfg.Input, cfg.Output, in.Set, in.Interfaces, archive.Options{
		Workers: cfg.Workers,
		Logger:  log,
	})
	if err != nil {
		return st, err
	}
	reportMissing(log, st)
	return st, nil
}

// Plan loads the inputs and describes the classes of cfg.Input that Apply
// would change, without writing anything.
func Plan(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]archive.Change, archive.Stats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.ValidateSources(); err != nil {
		return nil, archive.Stats{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Input == "" {
		return nil, archive.Stats{}, errors.New("config: input is required")
	}
	in, err := Load(cfg, log)
	if err != nil {
		return nil, archive.Stats{}, err
	}
	changes, st, err := archive.Plan(ctx, cfg.Input, in.Set, in.Interfaces, archive.Options{
		Workers: cfg.Workers,
		Logger:  log,
	})
	if err != nil {
		return nil, st, err
	}
	reportMissing(log, st)
	return changes, st, nil
}

func reportMissing(log *zap.Logger, st archive.Stats) {
	for _, name := range st.Missing {
		log.Warn("targeted class not found in archive", zap.String("class", name))
	}
}

func joinLint(errs ...error) error {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "\n"))
}
