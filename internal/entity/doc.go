// Package entity implements the bridge's entities and the rule that
// reconciles its two data channels.
//
// Every Datastream becomes a Sensor, every Thing with a battery-like
// stream gains a BatterySensor diagnostic, and every Thing gains a
// ConnectivitySensor reflecting the push channel. Sensors read from both
// channels with a fixed precedence: once a pushed value has arrived, the
// poll channel is ignored for that sensor until restart. The Manager
// builds the set from a fleet snapshot, persists it, and runs the
// periodic update tick and operator commands.
package entity
