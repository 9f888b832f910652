package mesh

// shouldInitiate decides which side of a peer pair sends the first offer.
// The lexicographically lower connection id initiates; both sides compute
// the same answer independently, so two peers never offer at once by rule.
func shouldInitiate(localId, remoteId string) bool {
	return localId < remoteId
}
