package pairup

import (
	"fmt"

	"github.com/cloudyy74/diconnect-pairup/internal/durable"
)

// Register binds the pair-up orchestrators and activities to their dispatch names.
func Register(rt *durable.Runtime, acts *Activities, orch *Orchestrators) error {
	orchestrators := map[string]durable.OrchestratorFunc{
		PreparePairUpMatchesToSendOrchestrator:          orch.PreparePairUpMatchesToSend,
		SyncRecipientsAndSendBatchesToQueueOrchestrator: orch.SyncRecipientsAndSendBatchesToQueue,
	}
	for name, fn := range orchestrators {
		if err := rt.RegisterOrchestrator(name, fn); err != nil {
			return fmt.Errorf("register orchestrator: %w", err)
		}
	}

	activities := map[string]durable.ActivityFunc{
		GetResourceGroupEntitiesActivity: acts.GetResourceGroupEntities,
		SyncPairUpMembersActivity:        acts.SyncPairUpMembers,
		GetActivePairUpUsersActivity:     acts.GetActivePairUpUsers,
		SendPairUpMatchesActivity:        acts.SendPairUpMatches,
	}
	for name, fn := range activities {
		if err := rt.RegisterActivity(name, fn); err != nil {
			return fmt.Errorf("register activity: %w", err)
		}
	}
	return nil
}
