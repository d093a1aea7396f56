package convert

// epsilon for simple unit conversions (linear multiplications/divisions).
const epsilon = 1e-9

// epsilonDeg for geographic degree comparisons.
const epsilonDeg = 1e-4
