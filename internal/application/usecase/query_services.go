package usecase

import (
	"context"
	"fmt"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/cache/redis"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// ListServicesUseCase возвращает подключенные сервисы с последним замером
type ListServicesUseCase struct {
	store repository.StateRepository
}

func NewListServicesUseCase(store repository.StateRepository) *ListServicesUseCase {
	return &ListServicesUseCase{store: store}
}

func (uc *ListServicesUseCase) Execute() []dto.ServiceDTO {
	services := uc.store.ConnectedServices()
	result := make([]dto.ServiceDTO, 0, len(services))
	for _, svc := range services {
		var last *dto.MetricSampleDTO
		if sample, ok := uc.store.LatestSample(svc.Name); ok {
			converted := dto.FromSample(sample)
			last = &converted
		}
		d := dto.FromService(svc, nil)
		d.LastMetric = last
		result = append(result, d)
	}
	return result
}

// GetServiceMetricsUseCase возвращает оконную выборку замеров сервиса
// с опциональным кешированием
type GetServiceMetricsUseCase struct {
	store  repository.StateRepository
	cache  port.Cache // может быть nil
	logger *logger.Logger
}

func NewGetServiceMetricsUseCase(
	store repository.StateRepository,
	cache port.Cache,
	logger *logger.Logger,
) *GetServiceMetricsUseCase {
	return &GetServiceMetricsUseCase{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Execute возвращает окно замеров; found=false когда сервис неизвестен
func (uc *GetServiceMetricsUseCase) Execute(ctx context.Context, service string, from, to int64, limit int) (dto.MetricsWindowDTO, bool) {
	if _, ok := uc.store.Service(service); !ok {
		return dto.MetricsWindowDTO{}, false
	}

	if uc.cache == nil {
		return uc.executeWithoutCache(service, from, to, limit), true
	}

	cacheKey := redis.MetricsWindowKey(service, from, to, limit)

	var cached dto.MetricsWindowDTO
	if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil {
		uc.logger.Debug("Cache hit for metrics window", "service", service)
		return cached, true
	}

	window := uc.executeWithoutCache(service, from, to, limit)

	// Сохраняем в кеш асинхронно, не блокируем ответ
	go func() {
		if err := uc.cache.Set(context.Background(), cacheKey, window); err != nil {
			uc.logger.Warn("Failed to cache metrics window", "error", err.Error())
		}
	}()

	return window, true
}

func (uc *GetServiceMetricsUseCase) executeWithoutCache(service string, from, to int64, limit int) dto.MetricsWindowDTO {
	samples, total := uc.store.SamplesWindow(service, from, to, limit)
	return dto.MetricsWindowDTO{
		Service: service,
		Metrics: dto.ToSamples(samples),
		Total:   total,
	}
}

// GetAlertsUseCase возвращает алерты в обратном хронологическом порядке
type GetAlertsUseCase struct {
	store repository.StateRepository
}

func NewGetAlertsUseCase(store repository.StateRepository) *GetAlertsUseCase {
	return &GetAlertsUseCase{store: store}
}

func (uc *GetAlertsUseCase) Execute(service, severity string, limit int) (dto.AlertsResponseDTO, error) {
	switch severity {
	case "", "info", "warning", "critical":
	default:
		return dto.AlertsResponseDTO{}, fmt.Errorf("%w: unknown severity %q", ErrValidation, severity)
	}

	alerts := uc.store.Alerts(service, severity, limit)
	return dto.AlertsResponseDTO{
		Alerts: dto.ToAlerts(alerts),
		Total:  len(alerts),
	}, nil
}
