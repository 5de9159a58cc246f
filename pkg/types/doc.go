// Package types holds interfaces shared across depbundle packages.
package types
