package validate

// FormOrder verifies the declared field order matches the attached fields
// exactly: same cardinality, same membership.
func FormOrder(order []int, fieldIDs []int) error {
	if len(order) != len(fieldIDs) {
		return fieldErrorf("metadata.order", "order must have the same number of fields")
	}

	inOrder := make(map[int]bool, len(order))
	for _, id := range order {
		inOrder[id] = true
	}
	for _, id := range fieldIDs {
		if !inOrder[id] {
			return fieldErrorf("metadata.order", "the %d field is not defined in metadata order", id)
		}
	}
	return nil
}
