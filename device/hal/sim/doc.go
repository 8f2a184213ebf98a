// Package sim provides an in-memory USB bus and a scripted host.
//
// [Bus] implements [hal.Transport] for the device stack and exposes the
// other end of the wire to test code or a hosted image: bus resets, SETUP
// packets with optional OUT data, bulk OUT delivery and IN collection.
// [Host] sequences those into control transfers and a full enumeration.
//
//	bus := sim.NewBus()
//	stack := device.NewStack(dev, bus, sig)
//	host := sim.NewHost(bus, func() error {
//	    _, err := exec.PollOnce()
//	    return err
//	})
//	info, err := host.Enumerate(5)
package sim
