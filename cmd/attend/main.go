// attend runs a face-gated attendance kiosk: it watches a camera feed,
// uploads a capture when a face is present and shows the backend verdict.
package main

func main() {
	execute()
}
