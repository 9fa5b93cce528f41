// janitor.go — фоновая очистка устаревших файлов.
//
// Janitor выполняет две задачи:
//  1. Удаляет записи старше окна хранения (QS_RETENTION), затем их blob'ы
//  2. Удаляет blob'ы, на которые не ссылается ни одна запись (сироты)
//
// Запись удаляется до blob'а: если удаление blob'а не удалось, файл уже
// недоступен для скачивания, а blob подберёт фаза 2 следующего запуска.
//
// Запускается как горутина с периодическим тикером (QS_JANITOR_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/qrshare/internal/domain/model"
	"github.com/bigkaa/qrshare/internal/storage/blobstore"
	"github.com/bigkaa/qrshare/internal/storage/records"
)

// Prometheus метрики Janitor
var (
	// janitorRunsTotal — количество запусков очистки.
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qs_janitor_runs_total",
		Help: "Общее количество запусков очистки",
	})

	// janitorRecordsExpiredTotal — количество удалённых устаревших записей.
	janitorRecordsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qs_janitor_records_expired_total",
		Help: "Общее количество записей, удалённых по окну хранения",
	})

	// janitorBlobsDeletedTotal — количество удалённых blob'ов (включая сирот).
	janitorBlobsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qs_janitor_blobs_deleted_total",
		Help: "Общее количество blob'ов, удалённых очисткой",
	}, []string{"kind"})

	// janitorErrorsTotal — количество ошибок очистки.
	janitorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qs_janitor_errors_total",
		Help: "Общее количество ошибок при очистке",
	})

	// janitorDurationSeconds — длительность очистки.
	janitorDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qs_janitor_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// JanitorResult — результат одного запуска очистки.
type JanitorResult struct {
	// Expired — количество удалённых устаревших записей
	Expired int
	// BlobsDeleted — количество удалённых blob'ов устаревших записей
	BlobsDeleted int
	// Orphans — количество удалённых blob'ов без записи
	Orphans int
	// Errors — количество ошибок при обработке
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Janitor — сервис фоновой очистки.
type Janitor struct {
	records   *records.Store
	blobs     *blobstore.BlobStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor создаёт сервис очистки.
func NewJanitor(
	store *records.Store,
	blobs *blobstore.BlobStore,
	retention time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *Janitor {
	return &Janitor{
		records:   store,
		blobs:     blobs,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "janitor")),
	}
}

// SetClock подменяет источник времени.
func (j *Janitor) SetClock(now func() time.Time) {
	j.now = now
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (j *Janitor) Start(ctx context.Context) {
	jctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.run(jctx)

	j.logger.Info("Очистка запущена",
		slog.String("interval", j.interval.String()),
		slog.String("retention", j.retention.String()),
	)
}

// Stop останавливает фоновую горутину и дожидается её завершения.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.cancel = nil
	j.logger.Info("Очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)

	// Первый запуск — сразу после старта
	j.RunOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Ошибка по одной записи логируется и не прерывает обработку остальных.
// Повторный запуск без новых загрузок ничего не удаляет.
func (j *Janitor) RunOnce() *JanitorResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	now := j.now().UTC()
	result := &JanitorResult{}

	j.logger.Debug("Очистка начата")

	j.sweepRecords(now, result)
	j.sweepOrphans(now, result)

	result.Duration = time.Since(start)

	janitorRunsTotal.Inc()
	janitorRecordsExpiredTotal.Add(float64(result.Expired))
	janitorBlobsDeletedTotal.WithLabelValues("expired").Add(float64(result.BlobsDeleted))
	janitorBlobsDeletedTotal.WithLabelValues("orphan").Add(float64(result.Orphans))
	janitorErrorsTotal.Add(float64(result.Errors))
	janitorDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelInfo
	if result.Expired == 0 && result.Orphans == 0 && result.Errors == 0 {
		level = slog.LevelDebug
	}
	j.logger.Log(context.Background(), level, "Очистка завершена",
		slog.Int("expired", result.Expired),
		slog.Int("blobs_deleted", result.BlobsDeleted),
		slog.Int("orphans", result.Orphans),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// sweepRecords удаляет записи старше retention и их blob'ы.
// Ключи берутся снимком, каждая запись проверяется под своей блокировкой.
func (j *Janitor) sweepRecords(now time.Time, result *JanitorResult) {
	stale := func(rec model.FileRecord) bool { return rec.IsStale(now, j.retention) }

	for _, fileID := range j.records.Keys() {
		rec, ok := j.records.DeleteIf(fileID, stale)
		if !ok {
			continue
		}
		result.Expired++

		if err := j.blobs.Delete(rec.BlobLocation); err != nil {
			j.logger.Error("Ошибка удаления blob устаревшего файла",
				slog.String("file_id", rec.FileID),
				slog.String("blob", rec.BlobLocation),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		result.BlobsDeleted++

		j.logger.Debug("Устаревший файл удалён",
			slog.String("file_id", rec.FileID),
			slog.String("filename", rec.OriginalName),
		)
	}
}

// sweepOrphans удаляет blob'ы старше retention, на которые нет записей.
// Свежие blob'ы не трогаются: они могут принадлежать загрузке в процессе.
func (j *Janitor) sweepOrphans(now time.Time, result *JanitorResult) {
	blobs, err := j.blobs.List()
	if err != nil {
		j.logger.Error("Ошибка чтения списка blob'ов",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return
	}

	referenced := make(map[string]struct{}, j.records.Len())
	for _, rec := range j.records.List() {
		referenced[rec.BlobLocation] = struct{}{}
	}

	for _, b := range blobs {
		if _, ok := referenced[b.Location]; ok {
			continue
		}
		if now.Sub(b.ModTime) <= j.retention {
			continue
		}

		if err := j.blobs.Delete(b.Location); err != nil {
			j.logger.Error("Ошибка удаления blob-сироты",
				slog.String("blob", b.Location),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		result.Orphans++

		j.logger.Debug("Blob-сирота удалён",
			slog.String("blob", b.Location),
			slog.Bool("temp", blobstore.IsTemp(b.Location)),
		)
	}
}
