/*
Copyright © 2022 the hypercc authors.
This file is part of hypercc.

hypercc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

hypercc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with hypercc.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package hash computes stable keys for configuration values, so that
// results can be traced back to the settings that produced them.
package hash

import (
	"fmt"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// printer prints values without calling their methods and without pointer
// addresses, so that the output depends only on the contents.
var printer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Key returns a hexadecimal FNV-1a key for the contents of object.
// Pointers are followed and map keys are sorted, so values with the same
// contents have the same key in every run.
func Key(object interface{}) string {
	h := fnv.New64a()
	printer.Fprintf(h, "%#v", object)
	return fmt.Sprintf("%016x", h.Sum64())
}
