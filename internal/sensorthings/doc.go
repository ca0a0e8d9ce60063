// Package sensorthings defines the OGC SensorThings API data model consumed
// by the bridge.
//
// The model covers only what the bridge reads: Things with their
// Datastreams and each stream's most recent Observation. Snapshots of this
// tree are immutable; the poll coordinator replaces them wholesale on every
// successful fetch so readers never see a partially updated tree.
//
// The battery classification helper lives here because it is a property of
// the data model, not of any one entity type: it decides at load time which
// streams feed diagnostic battery entities instead of generic sensors.
package sensorthings
