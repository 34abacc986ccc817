package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
	"github.com/jhoicas/StockLedger-api/internal/metrics"
	"github.com/jhoicas/StockLedger-api/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Valores por defecto del job de barrido.
const (
	DefaultSweepInterval        = time.Minute
	DefaultIdempotencyRetention = 30 * 24 * time.Hour

	lockTTL = 30 * time.Second
)

// Sweeper libera periódicamente los holds ACTIVE vencidos de todos los negocios
// y purga claves de idempotencia antiguas. El lock Redis por negocio evita que
// réplicas barran el mismo negocio a la vez; es solo un ahorro de trabajo: si
// dos réplicas coinciden igual, la transición guardada por estado hace que una
// gane y la otra observe el hold ya atendido.
type Sweeper struct {
	holdUC    *stock.HoldUseCase
	holdRepo  repository.StockHoldRepository
	idemRepo  repository.IdempotencyRepository
	locker    *redislock.Client // nil = sin coordinación entre réplicas
	interval  time.Duration
	retention time.Duration
	log       *logger.Logger
}

// NewSweeper construye el job. redisClient nil desactiva el lock distribuido.
func NewSweeper(
	holdUC *stock.HoldUseCase,
	holdRepo repository.StockHoldRepository,
	idemRepo repository.IdempotencyRepository,
	redisClient *redis.Client,
	intervalSeconds, retentionDays int,
	log *logger.Logger,
) *Sweeper {
	interval := DefaultSweepInterval
	if intervalSeconds > 0 {
		interval = time.Duration(intervalSeconds) * time.Second
	}
	retention := DefaultIdempotencyRetention
	if retentionDays > 0 {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}
	var locker *redislock.Client
	if redisClient != nil {
		locker = redislock.New(redisClient)
	}
	return &Sweeper{
		holdUC:    holdUC,
		holdRepo:  holdRepo,
		idemRepo:  idemRepo,
		locker:    locker,
		interval:  interval,
		retention: retention,
		log:       log.Component("sweeper"),
	}
}

// Run ejecuta el ciclo del job hasta que ctx se cancele.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("job de barrido iniciado")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("job de barrido detenido")
			return
		case <-ticker.C:
			s.sweepAll(ctx)
			s.purgeIdempotency(ctx)
		}
	}
}

func (s *Sweeper) sweepAll(ctx context.Context) {
	businesses, err := s.holdRepo.BusinessesWithExpired(time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("listar negocios con holds vencidos")
		return
	}
	for _, businessID := range businesses {
		if ctx.Err() != nil {
			return
		}
		s.sweepBusiness(ctx, businessID)
	}
}

func (s *Sweeper) sweepBusiness(ctx context.Context, businessID entity.ID) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, "stock-sweep:"+businessID.String(), lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			// Otra réplica ya barre este negocio.
			return
		}
		if err != nil {
			s.log.Warn().Err(err).Str("business_id", businessID.String()).Msg("lock de barrido no disponible; barriendo sin coordinación")
		} else {
			defer func() {
				if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
					s.log.Warn().Err(rerr).Msg("liberar lock de barrido")
				}
			}()
		}
	}

	released, err := s.holdUC.SweepExpired(ctx, businessID, 0)
	if err != nil {
		s.log.Error().Err(err).Str("business_id", businessID.String()).Msg("barrido de holds vencidos")
		return
	}
	if released > 0 {
		s.log.Info().Str("business_id", businessID.String()).Int("released", released).Msg("holds vencidos liberados")
	}
}

func (s *Sweeper) purgeIdempotency(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	purged, err := s.idemRepo.DeleteOlderThan(cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("purga de claves de idempotencia")
		return
	}
	if purged > 0 {
		metrics.IdempotencyRecordsPurged.Add(float64(purged))
		s.log.Debug().Int64("purged", purged).Msg("claves de idempotencia purgadas")
	}
}
