package usecase

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
)

// ListSnapshotsUseCase возвращает плоский список снапшотов и их группировку
// по сессиям захвата. Идентификатор сессии выводится из префикса имени файла
// до маркера фазы; сессия полна когда содержит before- и after-снапшоты.
type ListSnapshotsUseCase struct {
	store repository.StateRepository
}

func NewListSnapshotsUseCase(store repository.StateRepository) *ListSnapshotsUseCase {
	return &ListSnapshotsUseCase{store: store}
}

func (uc *ListSnapshotsUseCase) Execute() dto.SnapshotListDTO {
	snapshots := uc.store.Snapshots()

	flat := make([]dto.SnapshotDTO, 0, len(snapshots))
	groups := make(map[string][]entity.Snapshot)
	order := make([]string, 0)

	for _, snap := range snapshots {
		flat = append(flat, dto.FromSnapshot(snap))

		key := sessionKey(snap)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], snap)
	}

	sessions := make([]dto.SnapshotSessionDTO, 0, len(order))
	for _, key := range order {
		group := groups[key]

		hasBefore, hasAfter := false, false
		converted := make([]dto.SnapshotDTO, 0, len(group))
		serviceName := ""
		for _, snap := range group {
			switch snap.Phase {
			case entity.PhaseBefore:
				hasBefore = true
			case entity.PhaseAfter:
				hasAfter = true
			}
			if serviceName == "" {
				serviceName = snap.ServiceName
			}
			converted = append(converted, dto.FromSnapshot(snap))
		}

		sessions = append(sessions, dto.SnapshotSessionDTO{
			SessionID:   key,
			ServiceName: serviceName,
			Snapshots:   converted,
			Complete:    hasBefore && hasAfter,
		})
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })

	return dto.SnapshotListDTO{Snapshots: flat, Sessions: sessions}
}

// sessionKey выводит идентификатор сессии из префикса имени файла до маркера
// фазы; без маркера сессией считается сам сервис
func sessionKey(snap entity.Snapshot) string {
	name := strings.TrimSuffix(snap.Filename, filepath.Ext(snap.Filename))
	lower := strings.ToLower(name)

	for _, marker := range []string{"before", "after"} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			prefix := strings.Trim(name[:idx], "-_. ")
			if prefix != "" {
				return prefix
			}
		}
	}
	return snap.ServiceName
}
