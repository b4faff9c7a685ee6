// Package openfga implements phivault.PolicyEngine on an OpenFGA server.
//
// The relationship model that turns the owner tuples written at store time
// into can_read capability lives in the OpenFGA authorization model, outside
// this module.
package openfga

import (
	"context"
	"fmt"

	"github.com/openfga/go-sdk/client"

	"github.com/hengadev/phivault"
)

// Engine implements phivault.PolicyEngine using the OpenFGA SDK client.
type Engine struct {
	client *client.OpenFgaClient
}

// New creates an Engine for the given OpenFGA store. modelID is optional;
// when empty, the store's latest authorization model is used.
func New(apiURL, storeID, modelID string) (*Engine, error) {
	c, err := client.NewSdkClient(&client.ClientConfiguration{
		ApiUrl:               apiURL,
		StoreId:              storeID,
		AuthorizationModelId: modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating OpenFGA client: %v", phivault.ErrInvalidConfiguration, err)
	}
	return &Engine{client: c}, nil
}

// NewWithClient creates an Engine over an existing OpenFGA client.
func NewWithClient(c *client.OpenFgaClient) *Engine {
	return &Engine{client: c}
}

// WriteTuples stores the given authorization tuples.
func (e *Engine) WriteTuples(ctx context.Context, tuples []phivault.AuthorizationTuple) error {
	if len(tuples) == 0 {
		return nil
	}
	body := make(client.ClientWriteTuplesBody, 0, len(tuples))
	for _, t := range tuples {
		body = append(body, client.ClientTupleKey{
			User:     t.Subject,
			Relation: t.Relation,
			Object:   t.Object,
		})
	}
	if _, err := e.client.WriteTuples(ctx).Body(body).Execute(); err != nil {
		return fmt.Errorf("%w: writing tuples: %v", phivault.ErrPolicyUnavailable, err)
	}
	return nil
}

// ListObjects returns the ids of every object of the given type for which
// the subject holds the given relation.
func (e *Engine) ListObjects(ctx context.Context, subject, relation, objectType string) ([]string, error) {
	resp, err := e.client.ListObjects(ctx).Body(client.ClientListObjectsRequest{
		User:     subject,
		Relation: relation,
		Type:     objectType,
	}).Execute()
	if err != nil {
		return nil, fmt.Errorf("%w: listing objects for %q: %v", phivault.ErrPolicyUnavailable, subject, err)
	}
	return resp.GetObjects(), nil
}
