// github.com/tve/radio contains a driver for the Semtech SX1276 sub-GHz LoRa radio together
// with the narrow hardware interfaces it consumes: an SPI bus, GPIO pins, deadline timers,
// and the board's antenna switch. It uses periph.io for the low level access to the hardware
// pins. Simple commands to exercise the radio can be found in the cmd directory tree.
package radio
