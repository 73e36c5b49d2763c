/*
Package test provides testing utilities for the system-design-library.

This package includes:
  - Suite: Base test suite with context and testify integration
  - Run: runs a suite with testify

It has no database or Redis helpers.

Usage:

	import "github.com/openhqm/openhqm/pkg/test"

	type MyTestSuite struct {
		test.Suite
	}

	func (s *MyTestSuite) TestSomething() {
		s.NoError(doSomething(s.Ctx))
	}

	func TestMySuite(t *testing.T) {
		test.Run(t, new(MyTestSuite))
	}
*/
package test
