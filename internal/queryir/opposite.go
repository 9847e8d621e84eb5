package queryir

// opposites maps each condition kind to the kind that negates it. Kinds
// without an entry have no single-condition negation.
//
// HasAllElements maps to itself: "has not all of" has no tag of its own.
// Negated sub-queries built from it therefore keep the positive meaning.
var opposites = map[ConditionKind]ConditionKind{
	CondEquals:                  CondDoesNotEqual,
	CondDoesNotEqual:            CondEquals,
	CondExists:                  CondDoesNotExist,
	CondDoesNotExist:            CondExists,
	CondArrayExists:             CondArrayDoesNotExist,
	CondArrayDoesNotExist:       CondArrayExists,
	CondStartsWith:              CondDoesNotStartWith,
	CondDoesNotStartWith:        CondStartsWith,
	CondEndsWith:                CondDoesNotEndWith,
	CondDoesNotEndWith:          CondEndsWith,
	CondContains:                CondDoesNotContain,
	CondDoesNotContain:          CondContains,
	CondIsGreaterThan:           CondIsLesserThanOrEqual,
	CondIsLesserThanOrEqual:     CondIsGreaterThan,
	CondIsGreaterThanOrEqual:    CondIsLesserThan,
	CondIsLesserThan:            CondIsGreaterThanOrEqual,
	CondIsOneOfTheValues:        CondIsNoneOfTheValues,
	CondIsNoneOfTheValues:       CondIsOneOfTheValues,
	CondHasElement:              CondDoesNotHaveElement,
	CondDoesNotHaveElement:      CondHasElement,
	CondHasAnyOfTheElements:     CondHasNoneOfTheElements,
	CondHasNoneOfTheElements:    CondHasAnyOfTheElements,
	CondHasAllElements:          CondHasAllElements,
}

// Opposite returns the kind that negates k.
func (k ConditionKind) Opposite() (ConditionKind, error) {
	if !k.Valid() {
		return 0, NewMalformedConditionError(k.String())
	}
	o, ok := opposites[k]
	if !ok {
		return 0, NewUnsupportedError(k.String(), "no opposite condition for %s", k)
	}
	return o, nil
}

// Opposite returns a condition negating c with the same payload.
func Opposite(c Condition) (Condition, error) {
	k, err := c.kind.Opposite()
	if err != nil {
		return Condition{}, err
	}
	return Condition{kind: k, value: c.value}, nil
}
