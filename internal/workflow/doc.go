// Package workflow builds the opaque work descriptors submitted to the
// generation backend. Builders are pure functions over (style, region,
// conditioning, strength); the coordinator never inspects a descriptor
// beyond handing it to the network client.
package workflow
