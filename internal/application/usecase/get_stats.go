package usecase

import (
	"os"
	"runtime"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const bytesPerMB = 1024 * 1024

// GetStatsUseCase собирает счетчики состояния и память процесса сервера
type GetStatsUseCase struct {
	store     repository.StateRepository
	notifier  port.EventNotifier
	startedAt time.Time
	logger    *logger.Logger
}

func NewGetStatsUseCase(
	store repository.StateRepository,
	notifier port.EventNotifier,
	logger *logger.Logger,
) *GetStatsUseCase {
	return &GetStatsUseCase{
		store:     store,
		notifier:  notifier,
		startedAt: time.Now(),
		logger:    logger,
	}
}

func (uc *GetStatsUseCase) Execute() dto.StatsDTO {
	stats := uc.store.Stats()

	result := dto.StatsDTO{
		Services:          stats.Services,
		ConnectedServices: stats.ConnectedServices,
		MetricSamples:     stats.MetricSamples,
		Alerts:            stats.Alerts,
		Snapshots:         stats.Snapshots,
		Comparisons:       stats.Comparisons,
		Subscribers:       uc.notifier.SubscriberCount(),
		UptimeSeconds:     time.Since(uc.startedAt).Seconds(),
		Memory:            uc.collectMemory(),
	}
	return result
}

// collectMemory снимает память процесса через gopsutil; сбой любого
// источника не фатален — поле остается нулевым
func (uc *GetStatsUseCase) collectMemory() dto.MemoryUsageDTO {
	var usage dto.MemoryUsageDTO

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	usage.GoHeapAllocMB = float64(ms.HeapAlloc) / bytesPerMB

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			usage.ProcessRSSMB = float64(info.RSS) / bytesPerMB
			usage.ProcessVMSMB = float64(info.VMS) / bytesPerMB
		} else if err != nil {
			uc.logger.Debug("Process memory info unavailable", "error", err.Error())
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		usage.HostUsedPercent = vm.UsedPercent
	} else {
		uc.logger.Debug("Host memory info unavailable", "error", err.Error())
	}

	return usage
}
