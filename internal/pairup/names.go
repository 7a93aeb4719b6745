package pairup

// Dispatch names resolved by the orchestration runtime. Recorded history refers to
// steps by these names, so they must stay stable across releases.
const (
	PreparePairUpMatchesToSendOrchestrator          = "PreparePairUpMatchesToSendOrchestrator"
	SyncRecipientsAndSendBatchesToQueueOrchestrator = "SyncRecipientsAndSendBatchesToQueueOrchestrator"

	GetResourceGroupEntitiesActivity = "GetResourceGroupEntitiesActivity"
	SyncPairUpMembersActivity        = "SyncPairUpMembersActivity"
	GetActivePairUpUsersActivity     = "GetActivePairUpUsersActivity"
	SendPairUpMatchesActivity        = "SendPairUpMatchesActivity"
)
