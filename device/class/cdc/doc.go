// Package cdc implements the USB Communications Device Class (CDC) for the
// softusb device stack.
//
// This package provides the CDC-ACM (Abstract Control Model) function used
// for virtual COM ports.
//
// # Architecture
//
// A CDC-ACM function consists of two interfaces:
//
//   - Communications interface: SET_LINE_CODING, GET_LINE_CODING,
//     SET_CONTROL_LINE_STATE and SEND_BREAK, plus an interrupt IN endpoint
//     for SERIAL_STATE notifications
//   - Data interface: one bulk IN and one bulk OUT endpoint
//
// Each endpoint allows one transfer in flight. Submit and SendSerialState
// return [pkg.ErrTransferInProgress] rather than queueing.
//
// # Static Storage
//
// Class state lives in a [State] value the image places in static storage.
// The OUT endpoint receives directly into the buffer given to [NewState].
//
// # Usage
//
//	var stateCell static.Cell[cdc.State]
//
//	state := stateCell.MustInit(cdc.NewState(rx))
//	acm, err := cdc.New(builder, state, 64)
//	acm.SetOnLineCodingChange(func(lc cdc.LineCoding) {
//	    // baud rate, data bits, parity, stop bits
//	})
//
//	// From a task on the same executor, once configured:
//	n, _ := acm.Read(buf)
//	acm.Submit(buf[:n])
package cdc
