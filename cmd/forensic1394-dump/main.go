// forensic1394-dump enumerates the FireWire nodes visible to the host
// and prints the identity of each, in the spirit of gousb's own
// cmd/test.go probe: open every device, read what it offers, close it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	forensic1394 "github.com/FreddieWitherden/libforensic1394"
)

func main() {
	sbp2 := flag.Bool("sbp2", false, "publish the SBP-2 unit directory before enumerating")
	flag.Parse()

	bus, err := forensic1394.AllocBus()
	if err != nil {
		log.Fatalf("forensic1394: alloc bus: %v", err)
	}
	defer bus.Destroy()

	if *sbp2 {
		if res := bus.EnableSBP2(); res != forensic1394.Success {
			log.Fatalf("forensic1394: enable SBP-2: %v", res)
		}
		fmt.Fprintln(os.Stderr, "SBP-2 published; waiting for the bus reset to settle is the caller's job")
	}

	devices, res := bus.Enumerate(func(d *forensic1394.Device) {
		log.Printf("device %#016x destroyed", d.GUID())
	})
	if res != forensic1394.Success {
		log.Fatalf("forensic1394: enumerate: %v", res)
	}

	for _, d := range devices {
		if err := d.Open(); err != nil {
			log.Printf("device %#016x: open failed: %v", d.GUID(), err)
			continue
		}
		fmt.Printf("%#016x  vendor=%q (%#06x)  product=%q (%#06x)  max_req=%d\n",
			d.GUID(), d.VendorName(), d.VendorID(), d.ProductName(), d.ProductID(), d.MaxRequest())
		d.Close()
	}
}
