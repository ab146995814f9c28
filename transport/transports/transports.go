// Package transports imports every built-in transport so they register with
// transport.DefaultRegistry.
package transports

import (
	_ "github.com/drblury/puppets/transport/aws"
	_ "github.com/drblury/puppets/transport/channel"
	_ "github.com/drblury/puppets/transport/http"
	_ "github.com/drblury/puppets/transport/jetstream"
	_ "github.com/drblury/puppets/transport/kafka"
	_ "github.com/drblury/puppets/transport/nats"
	_ "github.com/drblury/puppets/transport/rabbitmq"
)
