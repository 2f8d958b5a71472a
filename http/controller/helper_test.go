package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencmp/cmp-orchestrator/entity"
)

func TestReprovisionConflictCrossProvider(t *testing.T) {
	existing := &entity.Resource{Provider: entity.ProviderAzure, State: entity.StateStopped}

	// A stopped Azure row must not be re-provisioned through the EC2
	// endpoint, even though the state alone would allow it.
	err := reprovisionConflict(existing, entity.ProviderAWS)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrConflict)
	assert.Contains(t, err.Error(), "azure")

	err = reprovisionConflict(&entity.Resource{Provider: entity.ProviderAWS, State: entity.StateError}, entity.ProviderAzure)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aws")
}

func TestReprovisionConflictSameProvider(t *testing.T) {
	existing := &entity.Resource{Provider: entity.ProviderAWS, State: entity.StateStopped}
	assert.NoError(t, reprovisionConflict(existing, entity.ProviderAWS))

	existing.State = entity.StateErrorProvisioning
	assert.NoError(t, reprovisionConflict(existing, entity.ProviderAWS))

	existing.State = entity.StateRunning
	assert.ErrorIs(t, reprovisionConflict(existing, entity.ProviderAWS), entity.ErrConflict)
}
