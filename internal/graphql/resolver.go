// Package graphql exposes the fulfillment and returns operations over a
// GraphQL endpoint. Operation documents are parsed with gqlparser and each
// top-level field is dispatched to a resolver; every resolver answers with a
// {success, data, error} envelope.
package graphql

import (
	"github.com/uptrace/opentelemetry-go-extra/otelzap"

	"github.com/tournevent/postershop/internal/fulfillment"
	"github.com/tournevent/postershop/internal/returns"
	"github.com/tournevent/postershop/internal/telemetry"
	"github.com/tournevent/postershop/pkg/carrier"
)

// Info describes the running service for the health query.
type Info struct {
	Service string
	Version string
}

// Resolver is the root resolver. It holds dependencies needed by all
// resolvers.
type Resolver struct {
	Orders  *fulfillment.Orchestrator
	Returns *returns.Workflow
	Carrier carrier.Gateway
	Info    Info
	Logger  *otelzap.Logger
	Metrics *telemetry.Metrics

	queries   map[string]fieldFunc
	mutations map[string]fieldFunc
}

// NewResolver creates a new resolver with the given dependencies.
func NewResolver(orders *fulfillment.Orchestrator, workflow *returns.Workflow, gateway carrier.Gateway, info Info, logger *otelzap.Logger, metrics *telemetry.Metrics) *Resolver {
	r := &Resolver{
		Orders:  orders,
		Returns: workflow,
		Carrier: gateway,
		Info:    info,
		Logger:  logger,
		Metrics: metrics,
	}
	r.queries = r.queryFields()
	r.mutations = r.mutationFields()
	return r
}
