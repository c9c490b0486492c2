// Package distance provides the similarity primitives shared by the vector
// search strategies.
package distance
