// Command epifit simulates and calibrates compartmental epidemic models
// from YAML scenarios.
package main

func main() {
	Execute()
}
