package reassembly

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

var (
	// ErrUnknownSnapshot — чанк или completion для неанонсированного id.
	// Вызывающий логирует и отбрасывает кадр, error frame не отправляется.
	ErrUnknownSnapshot = errors.New("unknown snapshot id")

	// ErrChunkOutOfRange — индекс чанка вне [0, totalChunks)
	ErrChunkOutOfRange = errors.New("chunk index out of range")

	// ErrNoChunkTable — нет ни анонсированного, ни присланного totalChunks
	ErrNoChunkTable = errors.New("total chunks unknown")
)

// Progress — счетчики приема одного снапшота
type Progress struct {
	Received int
	Total    int
}

// Assembled — полностью собранный снапшот, готовый к персистенции
type Assembled struct {
	ID       string
	Filename string
	FilePath string
	Size     int64
	Data     []byte
}

type pendingSnapshot struct {
	filename            string
	chunks              []string
	present             []bool
	received            int
	completionRequested bool
}

// Assembler восстанавливает снапшоты из индексированных чанков.
//
// Машина состояний на snapshot id: Announce создает запись, чанки заполняют
// таблицу (повторный индекс — last writer wins без повторного инкремента),
// завершение происходит только при completion-сообщении И полной таблице.
// Раннее completion запоминается и идемпотентно примиряется на последнем
// чанке. Повторный анонс id замещает таблицу целиком.
//
// Сборка и мутации таблицы идут под мьютексом; запись файла — после его
// освобождения.
type Assembler struct {
	mu      sync.Mutex
	dir     string
	pending map[string]*pendingSnapshot
	logger  *logger.Logger
}

// NewAssembler создает реассемблер, складывающий готовые файлы в dir
func NewAssembler(dir string, log *logger.Logger) *Assembler {
	return &Assembler{
		dir:     dir,
		pending: make(map[string]*pendingSnapshot),
		logger:  log,
	}
}

// Announce регистрирует снапшот. Таблица чанков выделяется сразу если
// totalChunks известен, иначе — на первом чанке.
func (a *Assembler) Announce(meta dto.SnapshotMetadata) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := &pendingSnapshot{filename: meta.Filename}
	if meta.TotalChunks > 0 {
		p.chunks = make([]string, meta.TotalChunks)
		p.present = make([]bool, meta.TotalChunks)
	}
	a.pending[meta.ID] = p
}

// AddChunk сохраняет чанк и возвращает прогресс. Если чанк был последним и
// completion уже запрошен, вторым значением возвращается собранный снапшот.
func (a *Assembler) AddChunk(id string, index, total int, data string) (Progress, *Assembled, error) {
	a.mu.Lock()

	p, ok := a.pending[id]
	if !ok {
		a.mu.Unlock()
		return Progress{}, nil, ErrUnknownSnapshot
	}

	if p.chunks == nil {
		if total <= 0 {
			a.mu.Unlock()
			return Progress{}, nil, ErrNoChunkTable
		}
		p.chunks = make([]string, total)
		p.present = make([]bool, total)
	}

	if index < 0 || index >= len(p.chunks) {
		progress := Progress{Received: p.received, Total: len(p.chunks)}
		a.mu.Unlock()
		return progress, nil, fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, index, len(p.chunks))
	}

	// Дубликат индекса: побеждает поздняя запись, счетчик не растет
	if !p.present[index] {
		p.present[index] = true
		p.received++
	}
	p.chunks[index] = data

	progress := Progress{Received: p.received, Total: len(p.chunks)}

	var assembled *Assembled
	if p.completionRequested && p.received == len(p.chunks) {
		assembled = buildAssembled(id, p)
		delete(a.pending, id)
	}
	a.mu.Unlock()

	if assembled != nil {
		if err := a.persist(assembled); err != nil {
			return progress, nil, err
		}
	}
	return progress, assembled, nil
}

// RequestComplete обрабатывает completion-сообщение. Если таблица полна,
// снапшот собирается и сохраняется; иначе completion запоминается и
// возвращается pending=true.
func (a *Assembler) RequestComplete(id string) (*Assembled, bool, error) {
	a.mu.Lock()

	p, ok := a.pending[id]
	if !ok {
		a.mu.Unlock()
		return nil, false, ErrUnknownSnapshot
	}

	if p.chunks == nil || p.received != len(p.chunks) {
		p.completionRequested = true
		a.mu.Unlock()
		return nil, true, nil
	}

	assembled := buildAssembled(id, p)
	delete(a.pending, id)
	a.mu.Unlock()

	if err := a.persist(assembled); err != nil {
		return nil, false, err
	}
	return assembled, false, nil
}

// PersistBlob сохраняет цельный blob (single-shot upload) в подкаталог
// каталога снапшотов и возвращает путь к файлу.
func (a *Assembler) PersistBlob(subdir, filename string, data []byte) (string, error) {
	dir := a.dir
	if subdir != "" {
		dir = filepath.Join(a.dir, filepath.Base(subdir))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot file: %w", err)
	}
	return path, nil
}

func buildAssembled(id string, p *pendingSnapshot) *Assembled {
	var builder strings.Builder
	for _, chunk := range p.chunks {
		builder.WriteString(chunk)
	}
	data := []byte(builder.String())

	return &Assembled{
		ID:       id,
		Filename: p.filename,
		Size:     int64(len(data)),
		Data:     data,
	}
}

func (a *Assembler) persist(assembled *Assembled) error {
	path, err := a.PersistBlob("", assembled.Filename, assembled.Data)
	if err != nil {
		return err
	}
	assembled.FilePath = path

	a.logger.Info("Snapshot persisted",
		"snapshot_id", assembled.ID,
		"file", path,
		"size", assembled.Size,
	)
	return nil
}
