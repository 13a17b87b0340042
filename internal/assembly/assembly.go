// Package assembly builds a bespoke worker roster for tasks the default
// software team cannot cover: it classifies the task into subject-matter
// domains, synthesizes Doer/Critic/Scope-keeper candidates per domain,
// deduplicates and merges overlapping candidates, elects a single
// Scope-keeper, and caps the synthesized headcount. Default workers are
// never dropped, merged, or rewritten by the pipeline.
package assembly

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/runtime"
)

// Config holds the assembly tunables.
type Config struct {
	// Model is the model id assembly queries run on.
	Model string

	// Cap is the maximum number of synthesized workers in the final
	// roster. Zero or negative means no cap.
	Cap int

	// Timeout bounds each individual assembly query.
	Timeout time.Duration

	// WorkingDirectory scopes the assembly sessions.
	WorkingDirectory string
}

// Assembler runs the team assembly pipeline against a runtime backend.
type Assembler struct {
	client runtime.Client
	cfg    Config
	clock  clockwork.Clock
	log    *logging.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock sets the clock used for query timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Assembler) { a.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(a *Assembler) { a.log = log }
}

// New creates an Assembler.
func New(client runtime.Client, cfg Config, opts ...Option) *Assembler {
	a := &Assembler{
		client: client,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		log:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithComponent("assembly")
	return a
}

// Assemble builds the roster for a task. Pure software tasks get the
// default roster unchanged; mixed tasks keep the defaults and add the
// surviving synthesized workers; non-software tasks run on the
// synthesized set alone. If synthesis produces nothing usable the
// default roster is the fallback, because an empty team cannot run.
func (a *Assembler) Assemble(ctx context.Context, task string, defaults []roster.Worker) ([]roster.Worker, error) {
	cls := a.Classify(ctx, task)
	a.log.Info("task classified", "type", string(cls.Type), "domains", strings.Join(cls.Domains, ", "))

	if cls.Type == TaskSoftware || len(cls.Domains) == 0 {
		return defaults, nil
	}

	candidates := a.generateAll(ctx, task, cls.Domains)
	if len(candidates) == 0 {
		a.log.Warn("no synthesized candidates survived generation, using default roster")
		return defaults, nil
	}

	verdicts := a.dedup(ctx, task, defaults, candidates)
	survivors := applyVerdicts(candidates, verdicts, defaults)
	survivors = electScopeKeeper(survivors, cls.Domains)
	survivors = enforceCap(survivors, cls.Domains, a.cfg.Cap)
	sortRoster(survivors, cls.Domains)

	if len(survivors) == 0 {
		a.log.Warn("no synthesized workers survived assembly, using default roster")
		return defaults, nil
	}

	if cls.Type == TaskMixed {
		out := make([]roster.Worker, 0, len(defaults)+len(survivors))
		out = append(out, defaults...)
		return append(out, survivors...), nil
	}
	return survivors, nil
}

// oneShot runs a single prompt on a fresh session and tears it down. A
// timed-out reply is returned as-is; the parse layer decides whether the
// partial output is usable.
func (a *Assembler) oneShot(ctx context.Context, prompt string) (string, error) {
	sess, err := a.client.OpenSession(ctx, runtime.SessionConfig{
		Model:            a.cfg.Model,
		WorkingDirectory: a.cfg.WorkingDirectory,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Destroy() }()

	reply, err := runtime.Collect(ctx, a.clock, sess, prompt, a.cfg.Timeout)
	if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
		return "", err
	}
	return reply, nil
}

// domainIndex returns a worker domain's position in the ordered domain
// list; unknown domains sort after every known one.
func domainIndex(domains []string, domain string) int {
	for i, d := range domains {
		if strings.EqualFold(d, domain) {
			return i
		}
	}
	return len(domains)
}

// roleRank orders roles within one domain: the Doer leads, the Critic
// follows, the Scope-keeper closes.
func roleRank(r roster.Role) int {
	switch r {
	case roster.RoleDoer:
		return 0
	case roster.RoleCritic:
		return 1
	default:
		return 2
	}
}

// sortRoster orders synthesized workers by domain position then role, so
// the primary domain's Doer ends up leading the team.
func sortRoster(workers []roster.Worker, domains []string) {
	sort.SliceStable(workers, func(i, j int) bool {
		di, dj := domainIndex(domains, workers[i].Domain), domainIndex(domains, workers[j].Domain)
		if di != dj {
			return di < dj
		}
		return roleRank(workers[i].Role) < roleRank(workers[j].Role)
	})
}
