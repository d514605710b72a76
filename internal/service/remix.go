package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/github"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// BatchSize is how many blobs are copied concurrently per batch. Batches run
// strictly one after another: this bounds concurrent pressure on the GitHub
// API and yields a readable "Lote i/N" progress narrative.
const BatchSize = 10

// RemixService orchestrates a full-tree copy from a source repository into a
// target repository.
//
// PIPELINE (one goroutine per admitted job):
//
//	validate → create history row → read source branch+tree
//	→ capture target branch + HEAD sha → copy blobs (batches of 10)
//	→ create tree WITHOUT base tree → commit → force-update ref
//	→ deduct 1 credit → mark history completed
//
// Any failure after the history row exists logs "❌ Erro: ...", persists the
// transcript, marks the row error, and emits the terminal error event. No
// GitHub call is ever retried — a transient failure fails the job, and since
// deduction happens only after full success, a failed job costs no credit.
//
// KNOWN RACES (deliberate, do not "fix" silently):
//   - TOCTOU on the ref: the target HEAD is captured before the copy begins
//     and force-pushed over at the end. A push to the target branch during
//     the copy is silently discarded.
//   - Credit deduction is read-then-write with a floor at 0, not a
//     transactional decrement. Two concurrent successes can under-deduct.
type RemixService struct {
	remixes repository.RemixRepository
	users   repository.UserRepository
	quota   *QuotaService
	clients github.ClientFactory
	logger  *slog.Logger
}

// NewRemixService creates a RemixService. The ClientFactory is called twice
// per job — once with the source token, once with the target token.
func NewRemixService(
	remixes repository.RemixRepository,
	users repository.UserRepository,
	quota *QuotaService,
	clients github.ClientFactory,
	logger *slog.Logger,
) *RemixService {
	return &RemixService{
		remixes: remixes,
		users:   users,
		quota:   quota,
		clients: clients,
		logger:  logger,
	}
}

// RemixRequest is one remix invocation. The two GitHub tokens are used
// in-flight only and never persisted.
type RemixRequest struct {
	SourceRepo  string `json:"sourceRepo"`
	TargetRepo  string `json:"targetRepo"`
	SourceToken string `json:"sourceToken"`
	TargetToken string `json:"targetToken"`
}

// Remix validates and admits a remix request.
//
// On rejection (bad repos, missing tokens, quota, credits) it returns a
// domain error and NO channel — nothing was persisted, no stream exists.
//
// On admission it returns an event channel and starts the job goroutine.
// The channel carries zero or more log events followed by exactly one
// terminal event ({done} or {error}), then closes. THE CALLER MUST DRAIN
// THE CHANNEL: the producer keeps running to completion even if the HTTP
// client disconnects (the job's side effects must be persisted regardless),
// so an abandoned channel would block it.
func (s *RemixService) Remix(ctx context.Context, userID string, req RemixRequest) (<-chan model.RemixEvent, error) {
	sourceRepo, err := github.ParseRepo(req.SourceRepo)
	if err != nil {
		return nil, apperror.ValidationFailed("sourceRepo", "repositório de origem inválido")
	}
	targetRepo, err := github.ParseRepo(req.TargetRepo)
	if err != nil {
		return nil, apperror.ValidationFailed("targetRepo", "repositório de destino inválido")
	}
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, apperror.ValidationFailed("sourceToken", "token de origem é obrigatório")
	}
	if strings.TrimSpace(req.TargetToken) == "" {
		return nil, apperror.ValidationFailed("targetToken", "token de destino é obrigatório")
	}

	if err := s.quota.CheckQuota(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.quota.CheckCredits(ctx, userID); err != nil {
		return nil, err
	}

	events := make(chan model.RemixEvent, 16)

	// The job must survive the HTTP request: a client that disconnects
	// mid-stream does not roll back GitHub calls already issued, and the
	// history record must still reach a terminal state.
	jobCtx := context.WithoutCancel(ctx)

	go s.run(jobCtx, events, userID, sourceRepo, targetRepo, req.SourceToken, req.TargetToken)

	return events, nil
}

// run drives one job to a terminal state and closes the event channel.
func (s *RemixService) run(ctx context.Context, events chan<- model.RemixEvent, userID, sourceRepo, targetRepo, sourceToken, targetToken string) {
	defer close(events)

	// The log buffer is owned by this goroutine alone — each concurrent job
	// accumulates its own transcript, persisted as a whole on every terminal
	// transition.
	var logs []string
	log := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		logs = append(logs, line)
		events <- model.RemixEvent{Log: line}
	}

	job := &model.RemixJob{
		UserID:     userID,
		SourceRepo: sourceRepo,
		TargetRepo: targetRepo,
		Status:     model.RemixStatusProcessing,
		Logs:       []string{},
	}

	log("📝 Criando registro no histórico...")
	if err := s.remixes.Create(ctx, job); err != nil {
		// No row exists yet, so there is nothing to mark as failed — the
		// stream's terminal error is the only record of this outcome.
		msg := fmt.Sprintf("Erro ao salvar histórico: %v", err)
		log("❌ Erro: %s", msg)
		events <- model.RemixEvent{Error: msg}
		return
	}

	err := s.copyPipeline(ctx, log, job, sourceToken, targetToken)
	if err != nil {
		log("❌ Erro: %v", err)
		if saveErr := s.remixes.SaveLogs(ctx, job.ID, logs); saveErr != nil {
			s.logger.Error("failed to persist logs for failed remix",
				slog.String("remixID", job.ID),
				slog.String("error", saveErr.Error()),
			)
		}
		if updErr := s.remixes.SetError(ctx, job.ID, err.Error()); updErr != nil {
			s.logger.Error("failed to mark remix as errored",
				slog.String("remixID", job.ID),
				slog.String("error", updErr.Error()),
			)
		}
		events <- model.RemixEvent{Error: err.Error()}
		return
	}

	log("✅ Remix concluído com sucesso!")
	if saveErr := s.remixes.SaveLogs(ctx, job.ID, logs); saveErr != nil {
		s.logger.Error("failed to persist logs for completed remix",
			slog.String("remixID", job.ID),
			slog.String("error", saveErr.Error()),
		)
	}
	events <- model.RemixEvent{Done: true}
}

// copyPipeline is the happy path: every step either advances the copy or
// returns the error that fails the whole job.
func (s *RemixService) copyPipeline(ctx context.Context, log func(string, ...any), job *model.RemixJob, sourceToken, targetToken string) error {
	source := s.clients(sourceToken)
	target := s.clients(targetToken)

	log("🔍 Obtendo branch padrão de %s...", job.SourceRepo)
	sourceBranch, err := source.GetDefaultBranch(ctx, job.SourceRepo)
	if err != nil {
		return err
	}
	log("   ↳ Branch: %s", sourceBranch)

	log("🌳 Lendo árvore de arquivos do repositório mãe...")
	sourceTree, err := source.ListTree(ctx, job.SourceRepo, sourceBranch)
	if err != nil {
		return err
	}
	log("   ↳ %d arquivos encontrados", len(sourceTree))

	log("🔍 Obtendo branch padrão de %s...", job.TargetRepo)
	targetBranch, err := target.GetDefaultBranch(ctx, job.TargetRepo)
	if err != nil {
		return err
	}
	log("   ↳ Branch: %s", targetBranch)

	// The parent of the new commit. Captured HERE, before the copy — the
	// force update at the end does not re-check it (accepted TOCTOU window).
	log("📌 Obtendo referência HEAD do destino...")
	targetHeadSHA, err := target.GetRef(ctx, job.TargetRepo, targetBranch)
	if err != nil {
		return err
	}
	log("   ↳ SHA: %s", shortSHA(targetHeadSHA))

	log("🚀 Copiando arquivos para o repositório destino...")
	log("   ⚠️  Todo conteúdo anterior do destino será substituído.")

	totalBatches := (len(sourceTree) + BatchSize - 1) / BatchSize
	treeItems := make([]model.TreeEntry, 0, len(sourceTree))

	for i := 0; i < len(sourceTree); i += BatchSize {
		batch := sourceTree[i:min(i+BatchSize, len(sourceTree))]
		log("   📦 Lote %d/%d (%d arquivos)...", i/BatchSize+1, totalBatches, len(batch))

		copied, err := s.copyBatch(ctx, source, target, job.SourceRepo, job.TargetRepo, batch)
		if err != nil {
			// A batch fails atomically: blobs from earlier batches are
			// already written but remain inert — nothing references them
			// until a tree/commit is created, and we never get there.
			return err
		}
		treeItems = append(treeItems, copied...)
	}

	log("🌲 Criando nova árvore (sem base_tree = apaga tudo antigo)...")
	newTreeSHA, err := target.CreateTree(ctx, job.TargetRepo, treeItems)
	if err != nil {
		return err
	}
	log("   ↳ Tree SHA: %s", shortSHA(newTreeSHA))

	log("💾 Criando commit...")
	commitSHA, err := target.CreateCommit(ctx, job.TargetRepo,
		fmt.Sprintf("Remix from %s via RemixHub", job.SourceRepo),
		newTreeSHA, []string{targetHeadSHA})
	if err != nil {
		return err
	}
	log("   ↳ Commit SHA: %s", shortSHA(commitSHA))

	log("🔄 Atualizando referência da branch %s...", targetBranch)
	if err := target.UpdateRef(ctx, job.TargetRepo, targetBranch, commitSHA); err != nil {
		return err
	}

	now := time.Now()
	if err := s.remixes.SetCompleted(ctx, job.ID, now); err != nil {
		return fmt.Errorf("Erro ao atualizar histórico: %v", err)
	}
	job.CompletedAt = &now

	// Deduction happens only after FULL success, and re-reads the balance
	// rather than trusting the value seen at admission — narrows (but does
	// not close) the double-spend window under concurrent jobs.
	log("💰 Descontando 1 crédito...")
	user, err := s.users.GetByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("Erro ao ler créditos: %v", err)
	}
	newBalance := user.Credits - 1
	if newBalance < 0 {
		newBalance = 0
	}
	if err := s.users.SetCredits(ctx, job.UserID, newBalance); err != nil {
		return fmt.Errorf("Erro ao descontar crédito: %v", err)
	}

	return nil
}

// copyBatch copies one batch of blobs concurrently: each file is read from
// the source (source token) and recreated in the target (target token).
// Results keep the batch's file order regardless of completion order. If any
// file fails, the first error wins and the whole batch is discarded.
func (s *RemixService) copyBatch(ctx context.Context, source, target github.GitClient, sourceRepo, targetRepo string, batch []model.TreeEntry) ([]model.TreeEntry, error) {
	results := make([]model.TreeEntry, len(batch))
	errs := make(chan error, len(batch))

	var wg sync.WaitGroup
	for i, entry := range batch {
		wg.Add(1)
		go func(i int, entry model.TreeEntry) {
			defer wg.Done()

			content, err := source.GetBlobContent(ctx, sourceRepo, entry.SHA)
			if err != nil {
				errs <- err
				return
			}

			// The new sha is content-addressed by the TARGET's object
			// database — same bytes, possibly different sha.
			newSHA, err := target.CreateBlob(ctx, targetRepo, content)
			if err != nil {
				errs <- err
				return
			}

			results[i] = model.TreeEntry{
				Path: entry.Path,
				Mode: entry.Mode,
				Type: "blob",
				SHA:  newSHA,
			}
		}(i, entry)
	}
	wg.Wait()

	select {
	case err := <-errs:
		return nil, err
	default:
	}

	return results, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
