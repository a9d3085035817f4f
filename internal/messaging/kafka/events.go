// Package kafka публикует события корзины в Kafka через sarama.
package kafka

// Topics для событий корзины.
const (
	TopicCartEvents      = "storefront.cart.events"
	TopicDeadLetterQueue = "storefront.cart.dlq"
)

// Kafka headers, которыми снабжается каждое сообщение.
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderAggregateType = "x-aggregate-type"
)
