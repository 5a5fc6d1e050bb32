package domain

import "time"

// ItemRepository описывает требования к хранилищу каталога.
type ItemRepository interface {
	// Create сохраняет новую работу. Возвращает ошибку, если запись с таким ID уже существует.
	Create(item Item) error
	// Get возвращает работу по идентификатору или ErrItemNotFound, если её нет.
	Get(id string) (Item, error)
	// GetMany возвращает найденные работы по списку идентификаторов.
	// Отсутствующие идентификаторы не считаются ошибкой: их просто нет в результате.
	GetMany(ids []string) ([]Item, error)
	// List возвращает каталог по фильтру в порядке убывания даты создания.
	List(filter ItemFilter) ([]Item, error)
	// MarkUnavailable помечает работы проданными одним условным обновлением:
	// затрагиваются только записи, доступные на момент записи. Возвращает
	// идентификаторы фактически изменённых записей; нехватка относительно ids
	// означает конфликт, а сам список задаёт границу компенсации. Компенсация
	// никогда не передаёт чужие идентификаторы, иначе можно вернуть в продажу
	// работу, проданную конкурентным заказом.
	MarkUnavailable(ids []string) ([]string, error)
	// MarkAvailable возвращает работы в продажу (компенсация неудавшейся оплаты).
	MarkAvailable(ids []string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetByNumber возвращает заказ по публичному номеру.
	GetByNumber(number string) (Order, error)
	// ListUnnotified возвращает заказы без отправленного уведомления,
	// созданные не позже указанного момента.
	ListUnnotified(createdBefore time.Time, limit int) ([]Order, error)
	// UpdateNotification сохраняет состояние доставки уведомления заказа.
	UpdateNotification(id string, state NotificationState) error
}

// ContactRepository описывает требования к хранилищу обращений.
type ContactRepository interface {
	Create(contact Contact) error
	Get(id string) (Contact, error)
	// ListUnnotified возвращает обращения без отправленного уведомления,
	// созданные не позже указанного момента.
	ListUnnotified(createdBefore time.Time, limit int) ([]Contact, error)
	UpdateNotification(id string, state NotificationState) error
}

// NewsletterRepository описывает требования к хранилищу подписок.
type NewsletterRepository interface {
	// Subscribe сохраняет подписчика; повторная активная подписка
	// того же адреса возвращает ErrAlreadySubscribed.
	Subscribe(sub NewsletterSubscriber) error
	GetByEmail(email string) (NewsletterSubscriber, error)
}

// SequenceRepository выдаёт строго возрастающие значения именованных
// суточных счётчиков. Первое значение дня равно единице; два конкурентных
// вызова никогда не получают одно и то же значение.
type SequenceRepository interface {
	Next(prefix string, day string) (int64, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	// Delete убирает запись ключа, освобождая его для повторной попытки.
	Delete(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
