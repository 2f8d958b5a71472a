package produce

import amqp "github.com/rabbitmq/amqp091-go"

type Produce struct {
	ProjectService *ProjectService
}

var produceInstance *Produce

func InitProduce(channel *amqp.Channel) *Produce {
	if produceInstance != nil {
		return produceInstance
	}

	produceInstance = &Produce{
		ProjectService: InitProjectService(channel),
	}
	return produceInstance
}
