package dispatch

import "fmt"

// OrderCode builds the code an order is created under: the customer's short
// code joined to the note's line number, e.g. "ADG-185". The code is
// deterministic so resubmitting a note targets the same order, and two lines
// sharing a line number collide; the backend rejects the second create with
// a duplicate-key error that surfaces on that line.
func OrderCode(customerCode string, lineNumber int) string {
	return fmt.Sprintf("%s-%d", customerCode, lineNumber)
}
