package port

import "github.com/dreschagin/memleak-dashboard/internal/application/dto"

// EventNotifier определяет интерфейс рассылки событий подписчикам (Port)
// Реализация — WebSocket Hub в Infrastructure слое
type EventNotifier interface {
	// Publish сериализует событие один раз и доставляет всем живым подписчикам.
	// События, опубликованные из одной операции, доставляются подписчику
	// в порядке публикации.
	Publish(event dto.Event)

	// SubscriberCount возвращает количество подключенных подписчиков
	SubscriberCount() int
}
