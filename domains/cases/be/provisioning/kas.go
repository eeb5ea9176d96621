package provisioning

import (
	"context"

	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
	"github.com/mediamatex/lexarbitra-vue/platform/go/kas"
)

// KAS provisions MySQL databases through the KAS hosting API.
type KAS struct {
	client *kas.Client
}

// NewKAS wraps a KAS API client as a provisioner.
func NewKAS(client *kas.Client) *KAS {
	return &KAS{client: client}
}

// Kind reports the backend discriminator stored on references this
// provisioner creates.
func (k *KAS) Kind() casedb.BackendKind { return casedb.BackendRemote }

// CreateDatabase provisions a database via the hosting API. The returned name
// and user are the API-assigned database login.
func (k *KAS) CreateDatabase(ctx context.Context, caseID, comment string) (service.ProvisionedDatabase, error) {
	db, err := k.client.CreateDatabase(ctx, caseID, comment)
	if err != nil {
		return service.ProvisionedDatabase{}, err
	}
	return service.ProvisionedDatabase{
		Name:     db.Name,
		User:     db.User,
		Password: db.Password,
		Host:     db.Host,
	}, nil
}

// DeleteDatabase drops the database by its login.
func (k *KAS) DeleteDatabase(ctx context.Context, nameOrPath string) bool {
	return k.client.DeleteDatabase(ctx, nameOrPath)
}

// TestConnectivity probes the hosting API.
func (k *KAS) TestConnectivity(ctx context.Context) bool {
	return k.client.TestConnection(ctx)
}
